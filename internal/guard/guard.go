// Package guard is the safety collaborator consulted before automated
// command execution. It runs a hard-veto pass over the command text, then
// grades residual risk using the attempt ledger.
package guard

// #region imports
import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"opsched/internal/catalog"
)

// #endregion

// #region veto-types

// VetoType classifies why automation was refused outright.
type VetoType string

const (
	VetoDestructive    VetoType = "destructive"
	VetoPrivilege      VetoType = "privilege-escalation"
	VetoPipedDownload  VetoType = "piped-download"
	VetoUnknownCommand VetoType = "unknown-command"
	VetoUnparseable    VetoType = "unparseable"
)

// Veto is one reason automation was refused.
type Veto struct {
	Type   VetoType
	Reason string
}

// #endregion

// #region decision

// Decision is the guard's verdict for one command.
type Decision struct {
	Allowed bool
	Reason  string
	Risk    catalog.RiskLevel
	Vetoes  []Veto
}

// #endregion

// #region patterns

// destructivePatterns hard-veto regardless of the base command.
var destructivePatterns = []string{
	"rm -rf /",
	"rm -rf ~",
	"mkfs",
	"dd if=",
	"> /dev/sd",
	":(){",
	"git push --force",
	"git push -f",
	"drop table",
	"truncate table",
}

// privilegePatterns hard-veto privilege escalation.
var privilegePatterns = []string{
	"sudo ",
	"doas ",
	"su -",
	"chmod 777 /",
}

// pipedDownloadPatterns hard-veto fetch-and-execute.
var pipedDownloadPatterns = []string{
	"curl", "wget",
}

// allowedBaseCommands are tools the scheduler may run unattended.
var allowedBaseCommands = map[string]struct{}{
	"go": {}, "gofmt": {}, "golangci-lint": {}, "staticcheck": {},
	"npm": {}, "npx": {}, "yarn": {}, "pnpm": {}, "node": {},
	"tsc": {}, "eslint": {}, "prettier": {},
	"pytest": {}, "python": {}, "python3": {}, "ruff": {}, "mypy": {},
	"cargo": {}, "rustc": {},
	"make": {}, "cmake": {}, "mvn": {}, "gradle": {},
	"git": {}, "docker": {},
	"true": {}, "false": {}, "echo": {}, "sleep": {}, "sh": {}, "bash": {},
}

// #endregion

// #region guard

// Guard evaluates commands for unattended execution and keeps the
// attempt ledger. ledger may be nil (risk grading then skips history).
type Guard struct {
	ledger *Ledger
}

// New creates a guard over an optional attempt ledger.
func New(ledger *Ledger) *Guard {
	return &Guard{ledger: ledger}
}

// #endregion

// #region can-execute

// CanExecuteAutomation decides whether a command may run without a human.
// Hard vetoes first; a clean command is then graded by base-command
// familiarity and recent failure history.
func (g *Guard) CanExecuteAutomation(command string) Decision {
	lower := strings.ToLower(command)
	var vetoes []Veto

	for _, pat := range destructivePatterns {
		if strings.Contains(lower, pat) {
			vetoes = append(vetoes, Veto{VetoDestructive, fmt.Sprintf("matches destructive pattern %q", pat)})
		}
	}
	for _, pat := range privilegePatterns {
		if strings.Contains(lower, pat) || strings.HasPrefix(lower, strings.TrimSpace(pat)) {
			vetoes = append(vetoes, Veto{VetoPrivilege, fmt.Sprintf("matches privilege pattern %q", strings.TrimSpace(pat))})
		}
	}
	if strings.Contains(lower, "|") {
		for _, fetch := range pipedDownloadPatterns {
			if strings.Contains(lower, fetch) {
				vetoes = append(vetoes, Veto{VetoPipedDownload, "pipes a network fetch into another command"})
			}
		}
	}

	argv, err := shellquote.Split(command)
	if err != nil || len(argv) == 0 {
		vetoes = append(vetoes, Veto{VetoUnparseable, "command does not parse as a shell word list"})
	}

	if len(vetoes) > 0 {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Risk:    catalog.RiskCritical,
			Vetoes:  vetoes,
		}
	}

	base := argv[0]
	if _, ok := allowedBaseCommands[base]; !ok {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("base command %q is not on the automation allow-list", base),
			Risk:    catalog.RiskHigh,
			Vetoes:  []Veto{{VetoUnknownCommand, fmt.Sprintf("%q not allow-listed", base)}},
		}
	}

	risk := catalog.RiskLow
	if g.ledger != nil {
		rate, n, err := g.ledger.RecentFailureRate(base, 20)
		if err == nil && n >= 3 && rate > 0.5 {
			risk = raiseRisk(risk)
		}
	}

	return Decision{
		Allowed: true,
		Reason:  fmt.Sprintf("%q allow-listed, assessed risk %s", base, risk),
		Risk:    risk,
	}
}

// #endregion

// #region record-attempt

// RecordAttempt files one execution attempt in the ledger for future
// risk grading. A nil ledger makes this a no-op.
func (g *Guard) RecordAttempt(command string, success bool, durationMs int64, execErr error) error {
	if g.ledger == nil {
		return nil
	}
	errText := ""
	if execErr != nil {
		errText = execErr.Error()
	}
	return g.ledger.Record(command, success, durationMs, errText)
}

// #endregion

// #region helpers

// raiseRisk bumps risk one level, saturating at critical.
func raiseRisk(r catalog.RiskLevel) catalog.RiskLevel {
	switch r {
	case catalog.RiskLow:
		return catalog.RiskMedium
	case catalog.RiskMedium:
		return catalog.RiskHigh
	default:
		return catalog.RiskCritical
	}
}

// #endregion
