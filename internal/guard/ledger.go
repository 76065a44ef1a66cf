package guard

// #region imports
import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// #endregion

// #region schema

const attemptsSchema = `
CREATE TABLE IF NOT EXISTS automation_attempts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    base_command TEXT NOT NULL,
    command      TEXT NOT NULL,
    success      INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL,
    error        TEXT,
    created_at   TEXT NOT NULL
);
`

const attemptsIndex = `
CREATE INDEX IF NOT EXISTS idx_automation_attempts_base
ON automation_attempts(base_command, id);
`

// #endregion

// #region ledger

// Ledger persists automation attempts in SQLite so the guard can grade
// risk from recent history.
type Ledger struct {
	db *sql.DB
}

// NewLedger initializes the automation_attempts table.
func NewLedger(db *sql.DB) (*Ledger, error) {
	if _, err := db.Exec(attemptsSchema); err != nil {
		return nil, fmt.Errorf("create attempts table: %w", err)
	}
	if _, err := db.Exec(attemptsIndex); err != nil {
		return nil, fmt.Errorf("create attempts index: %w", err)
	}
	return &Ledger{db: db}, nil
}

// #endregion

// #region record

// Record files one attempt row.
func (l *Ledger) Record(command string, success bool, durationMs int64, errText string) error {
	succ := 0
	if success {
		succ = 1
	}
	_, err := l.db.Exec(`
		INSERT INTO automation_attempts
		(base_command, command, success, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		baseCommand(command),
		command,
		succ,
		durationMs,
		nullIfEmpty(errText),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// #endregion

// #region failure-rate

// RecentFailureRate returns the failure fraction over the most recent
// limit attempts for a base command, plus the sample count.
func (l *Ledger) RecentFailureRate(base string, limit int) (float64, int, error) {
	rows, err := l.db.Query(`
		SELECT success FROM automation_attempts
		WHERE base_command = ?
		ORDER BY id DESC LIMIT ?`,
		base, limit,
	)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var total, failed int
	for rows.Next() {
		var succ int
		if err := rows.Scan(&succ); err != nil {
			return 0, 0, err
		}
		total++
		if succ == 0 {
			failed++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(failed) / float64(total), total, nil
}

// #endregion

// #region stats

// AttemptStat aggregates the ledger per base command.
type AttemptStat struct {
	BaseCommand string
	Attempts    int
	Failures    int
	LastSeen    time.Time
}

// AttemptStats summarizes attempts grouped by base command, most
// recently used first.
func (l *Ledger) AttemptStats() ([]AttemptStat, error) {
	rows, err := l.db.Query(`
		SELECT base_command,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       MAX(created_at)
		FROM automation_attempts
		GROUP BY base_command
		ORDER BY MAX(id) DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []AttemptStat
	for rows.Next() {
		var st AttemptStat
		var last string
		if err := rows.Scan(&st.BaseCommand, &st.Attempts, &st.Failures, &last); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, last); err == nil {
			st.LastSeen = ts
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// #endregion

// #region helpers

// baseCommand extracts the first shell word, falling back to the first
// whitespace field when the command does not parse.
func baseCommand(command string) string {
	if argv, err := shellquote.Split(command); err == nil && len(argv) > 0 {
		return argv[0]
	}
	fields := strings.Fields(command)
	if len(fields) > 0 {
		return fields[0]
	}
	return command
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion
