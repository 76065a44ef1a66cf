// Package console implements the terminal-facing collaborators: a
// stdin approver for gated operations and a log-based timeout notifier.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"opsched/internal/decision"
	"opsched/internal/execsafe"
	"opsched/internal/op"
)

// #region approver

// Approver asks yes/no questions on a terminal.
type Approver struct {
	in  *bufio.Reader
	out io.Writer
}

// NewApprover reads answers from in and writes prompts to out.
func NewApprover(in io.Reader, out io.Writer) *Approver {
	return &Approver{in: bufio.NewReader(in), out: out}
}

// RequestApproval prints the scored request and reads a y/n answer.
func (a *Approver) RequestApproval(ctx context.Context, o op.Operation, score decision.ApprovalScore) (bool, error) {
	fmt.Fprintf(a.out, "\napproval needed: %s (%s)\n", o.Name, o.Type)
	fmt.Fprintf(a.out, "  command: %s\n", o.Command)
	fmt.Fprintf(a.out, "  score %.1f, confidence %.2f → %s\n", score.TotalScore, score.Confidence, score.Recommendation)
	for _, line := range score.Reasoning {
		fmt.Fprintf(a.out, "    %s\n", line)
	}
	return a.ask(ctx, "proceed? [y/N] ")
}

// Confirm asks a short yes/no question.
func (a *Approver) Confirm(ctx context.Context, prompt string) (bool, error) {
	return a.ask(ctx, prompt+" [y/N] ")
}

// ask blocks on a line of input. The read itself cannot be interrupted,
// but a cancelled context turns any late answer into a refusal.
func (a *Approver) ask(ctx context.Context, prompt string) (bool, error) {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// #endregion

// #region notifier

// Notifier reports executor timeouts to the log.
type Notifier struct{}

func (Notifier) NotifyTimeout(err execsafe.TimeoutError) {
	log.Printf("[NOTIFY] %s operation hit its %v timeout", err.Type, err.Timeout)
}

// #endregion
