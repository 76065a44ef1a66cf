// Package history records every decision and outcome the scheduler
// produces: an in-memory learner that adjusts the catalog after each
// run, and a SQLite store that makes outcomes durable across restarts.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"opsched/internal/catalog"
	"opsched/internal/op"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS operation_outcomes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id     TEXT NOT NULL,
	operation_name  TEXT NOT NULL,
	operation_type  TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	success         INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	expected_ms     INTEGER NOT NULL,
	satisfaction    REAL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operation_outcomes_type
ON operation_outcomes(operation_type, created_at);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id   TEXT NOT NULL,
	operation_name TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	reasoning     TEXT,
	context_json  TEXT,
	forecast_json TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion

// #region store

// Store persists decisions and outcomes in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the open handle so sibling stores (the automation ledger)
// can share one database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion

// #region record

// RecordDecision appends one row to the decision log.
func (s *Store) RecordDecision(e Entry, context op.ExecutionContext) error {
	ctxJSON, err := json.Marshal(context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	forecastJSON, err := json.Marshal(e.Expected)
	if err != nil {
		return fmt.Errorf("marshal forecast: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO decision_log
		(decision_id, operation_name, operation_type, strategy, reasoning,
		 context_json, forecast_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DecisionID,
		e.OperationName,
		string(e.OperationType),
		string(e.Strategy),
		e.Reasoning,
		string(ctxJSON),
		string(forecastJSON),
		e.DecidedAt.Format(time.RFC3339),
	)
	return err
}

// RecordOutcome appends one completed-run row.
func (s *Store) RecordOutcome(e Entry) error {
	success := 0
	if e.Success {
		success = 1
	}
	var satisfaction any
	if e.Satisfaction != nil {
		satisfaction = *e.Satisfaction
	}
	_, err := s.db.Exec(`
		INSERT INTO operation_outcomes
		(decision_id, operation_name, operation_type, strategy, success,
		 duration_ms, expected_ms, satisfaction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DecisionID,
		e.OperationName,
		string(e.OperationType),
		string(e.Strategy),
		success,
		e.Duration.Milliseconds(),
		e.Expected.Duration.Milliseconds(),
		satisfaction,
		time.Now().Format(time.RFC3339),
	)
	return err
}

// #endregion

// #region success-rate

// successRateHalfLife weights recent outcomes over stale ones.
const successRateHalfLife = 7.0 * 24.0 // hours

// minSamples below which SuccessRate declines to estimate.
const minSamples = 3

// SuccessRate returns the decay-weighted success rate for an operation
// type. Returns (0, false) when fewer than minSamples rows exist:
// too little evidence to override the seeded profile.
func (s *Store) SuccessRate(t op.OperationType) (float64, bool, error) {
	rows, err := s.db.Query(`
		SELECT success, created_at
		FROM operation_outcomes
		WHERE operation_type = ?`,
		string(t),
	)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	now := time.Now()
	var weightedSum, totalWeight float64
	count := 0

	for rows.Next() {
		var success int
		var createdAtStr string
		if err := rows.Scan(&success, &createdAtStr); err != nil {
			return 0, false, err
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / successRateHalfLife)
		weightedSum += float64(success) * weight
		totalWeight += weight
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if count < minSamples || totalWeight == 0 {
		return 0, false, nil
	}
	return weightedSum / totalWeight, true, nil
}

// WarmCatalog maps stored success rates back onto catalog reliability
// ratings (rate 0 → 1.0, rate 1 → 5.0) for every type with enough
// history. Called once at startup so learning survives restarts.
func (s *Store) WarmCatalog(c *catalog.Catalog) error {
	for _, t := range op.KnownTypes() {
		rate, ok, err := s.SuccessRate(t)
		if err != nil {
			return fmt.Errorf("success rate for %s: %w", t, err)
		}
		if !ok {
			continue
		}
		if err := c.SetReliability(t, 1.0+rate*4.0); err != nil {
			return err
		}
	}
	return nil
}

// #endregion

// #region recent

// StoredOutcome is one row of the durable outcome log.
type StoredOutcome struct {
	DecisionID    string
	OperationName string
	OperationType op.OperationType
	Strategy      op.ExecStrategy
	Success       bool
	Duration      time.Duration
	CreatedAt     time.Time
}

// LoggedDecision is one row of the decision log with its context
// restored.
type LoggedDecision struct {
	DecisionID    string
	OperationName string
	OperationType op.OperationType
	Strategy      op.ExecStrategy
	Reasoning     string
	Context       op.ExecutionContext
	CreatedAt     time.Time
}

// Decisions returns up to limit logged decisions, oldest first. Rows
// whose context no longer parses are skipped.
func (s *Store) Decisions(limit int) ([]LoggedDecision, error) {
	rows, err := s.db.Query(`
		SELECT decision_id, operation_name, operation_type, strategy,
		       reasoning, context_json, created_at
		FROM decision_log
		ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoggedDecision
	for rows.Next() {
		var d LoggedDecision
		var typ, strat, ctxJSON, createdAtStr string
		if err := rows.Scan(&d.DecisionID, &d.OperationName, &typ, &strat,
			&d.Reasoning, &ctxJSON, &createdAtStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ctxJSON), &d.Context); err != nil {
			continue
		}
		d.OperationType = op.OperationType(typ)
		d.Strategy = op.ExecStrategy(strat)
		if ts, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
			d.CreatedAt = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (s *Store) RecentOutcomes(limit int) ([]StoredOutcome, error) {
	rows, err := s.db.Query(`
		SELECT decision_id, operation_name, operation_type, strategy,
		       success, duration_ms, created_at
		FROM operation_outcomes
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredOutcome
	for rows.Next() {
		var o StoredOutcome
		var typ, strat, createdAtStr string
		var success, durationMs int64
		if err := rows.Scan(&o.DecisionID, &o.OperationName, &typ, &strat,
			&success, &durationMs, &createdAtStr); err != nil {
			return nil, err
		}
		o.OperationType = op.OperationType(typ)
		o.Strategy = op.ExecStrategy(strat)
		o.Success = success == 1
		o.Duration = time.Duration(durationMs) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
			o.CreatedAt = ts
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// #endregion
