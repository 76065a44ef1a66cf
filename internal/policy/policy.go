// Package policy loads the governance rules document: per-operation-type
// timeouts, retry budgets, cache lifetimes, and the file sets whose
// changes invalidate cached results. A rules file that fails to cover a
// known operation type is a startup configuration error, never a silent
// unbounded run at execution time.
package policy

// #region imports
import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"opsched/internal/op"
)

// #endregion

// #region rule

// Rule is the governance entry for one operation type.
type Rule struct {
	TimeoutMs     int      `yaml:"timeout_ms"`
	MaxRetries    int      `yaml:"max_retries"`
	RetryDelayMs  int      `yaml:"retry_delay_ms"`
	CacheTTL      string   `yaml:"cache_ttl"` // Go duration string, empty = built-in default
	RelevantFiles []string `yaml:"relevant_files"`
}

// document is the on-disk shape of the rules file.
type document struct {
	Operations map[string]Rule `yaml:"operations"`
}

// #endregion

// #region policy

// Policy answers timeout/retry/cache questions for operation types.
type Policy struct {
	rules map[op.OperationType]Rule
}

// #endregion

// #region defaults

// defaultCacheTTLs fixes cache lifetimes per type; everything else gets
// the 5 minute fallback.
var defaultCacheTTLs = map[op.OperationType]time.Duration{
	op.TypeTypecheck: 2 * time.Minute,
	op.TypeLint:      5 * time.Minute,
	op.TypeTest:      10 * time.Minute,
	op.TypeAnalysis:  30 * time.Minute,
}

const fallbackCacheTTL = 5 * time.Minute

// Default returns a policy covering every known type with built-in rules.
// Used when no rules file is configured and by tests.
func Default() *Policy {
	rules := map[op.OperationType]Rule{
		op.TypeLint:      {TimeoutMs: 30000, MaxRetries: 2, RetryDelayMs: 1000},
		op.TypeTypecheck: {TimeoutMs: 45000, MaxRetries: 2, RetryDelayMs: 1000},
		op.TypeTest:      {TimeoutMs: 120000, MaxRetries: 1, RetryDelayMs: 2000},
		op.TypeAudit:     {TimeoutMs: 180000, MaxRetries: 1, RetryDelayMs: 2000},
		op.TypeBuild:     {TimeoutMs: 300000, MaxRetries: 1, RetryDelayMs: 5000},
		op.TypeEvolution: {TimeoutMs: 600000, MaxRetries: 0, RetryDelayMs: 0},
		op.TypeAnalysis:  {TimeoutMs: 120000, MaxRetries: 1, RetryDelayMs: 2000},
	}
	return &Policy{rules: rules}
}

// #endregion

// #region load

// Load reads a YAML rules file and validates that every required type is
// covered with a positive timeout. Missing coverage fails here, at
// startup, rather than falling back to an unbounded run later.
func Load(path string, required []op.OperationType) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rules := make(map[op.OperationType]Rule, len(doc.Operations))
	for name, rule := range doc.Operations {
		rules[op.OperationType(name)] = rule
	}
	p := &Policy{rules: rules}

	if err := p.Validate(required); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks coverage: each required type needs a rule with a
// positive timeout and a parseable cache TTL.
func (p *Policy) Validate(required []op.OperationType) error {
	for _, typ := range required {
		rule, ok := p.rules[typ]
		if !ok {
			return fmt.Errorf("rules file does not cover operation type %q", typ)
		}
		if rule.TimeoutMs <= 0 {
			return fmt.Errorf("operation type %q has no positive timeout", typ)
		}
		if rule.CacheTTL != "" {
			if _, err := time.ParseDuration(rule.CacheTTL); err != nil {
				return fmt.Errorf("operation type %q has invalid cache_ttl %q: %w", typ, rule.CacheTTL, err)
			}
		}
	}
	return nil
}

// #endregion

// #region accessors

// Timeout returns the per-attempt timeout for a type. A type the policy
// does not cover is an error: validation should have caught it, and the
// executor must not run unbounded by accident.
func (p *Policy) Timeout(typ op.OperationType) (time.Duration, error) {
	rule, ok := p.rules[typ]
	if !ok || rule.TimeoutMs <= 0 {
		return 0, fmt.Errorf("no timeout policy for operation type %q", typ)
	}
	return time.Duration(rule.TimeoutMs) * time.Millisecond, nil
}

// MaxRetries returns the retry budget for a type (0 when uncovered).
func (p *Policy) MaxRetries(typ op.OperationType) int {
	return p.rules[typ].MaxRetries
}

// RetryDelay returns the base backoff delay for a type.
func (p *Policy) RetryDelay(typ op.OperationType) time.Duration {
	ms := p.rules[typ].RetryDelayMs
	if ms <= 0 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}

// CacheTTL returns the result-cache lifetime for a type: the rule's
// override when set, else the built-in per-type default.
func (p *Policy) CacheTTL(typ op.OperationType) time.Duration {
	if rule, ok := p.rules[typ]; ok && rule.CacheTTL != "" {
		if d, err := time.ParseDuration(rule.CacheTTL); err == nil {
			return d
		}
	}
	if d, ok := defaultCacheTTLs[typ]; ok {
		return d
	}
	return fallbackCacheTTL
}

// RelevantFiles returns the paths whose changes invalidate cached
// results for a type.
func (p *Policy) RelevantFiles(typ op.OperationType) []string {
	return p.rules[typ].RelevantFiles
}

// #endregion
