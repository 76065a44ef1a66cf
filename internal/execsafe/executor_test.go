package execsafe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"opsched/internal/op"
)

// stubPolicy serves timeouts from a map.
type stubPolicy struct {
	timeouts map[op.OperationType]time.Duration
}

func (p *stubPolicy) Timeout(typ op.OperationType) (time.Duration, error) {
	d, ok := p.timeouts[typ]
	if !ok {
		return 0, fmt.Errorf("no timeout policy for operation type %q", typ)
	}
	return d, nil
}

// stubNotifier records timeout notifications.
type stubNotifier struct {
	notified []TimeoutError
}

func (n *stubNotifier) NotifyTimeout(err TimeoutError) {
	n.notified = append(n.notified, err)
}

func shortPolicy() *stubPolicy {
	return &stubPolicy{timeouts: map[op.OperationType]time.Duration{
		op.TypeLint: 20 * time.Millisecond,
		op.TypeTest: 200 * time.Millisecond,
	}}
}

func TestExecuteSuccess(t *testing.T) {
	e := New(shortPolicy(), nil, nil)
	calls := 0
	err := e.Execute(context.Background(), "op-1", func(ctx context.Context) error {
		calls++
		return nil
	}, Options{Type: op.TypeLint, MaxRetries: 3, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("successful run took %d attempts, want 1", calls)
	}
}

func TestExecuteTimeoutRetriesExactly(t *testing.T) {
	notifier := &stubNotifier{}
	e := New(shortPolicy(), notifier, nil)

	attempts := 0
	timeouts := 0
	retries := []int{}

	err := e.Execute(context.Background(), "op-1", func(ctx context.Context) error {
		attempts++
		<-ctx.Done() // always overrun the 20ms budget
		return ctx.Err()
	}, Options{
		Type:       op.TypeLint,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnTimeout:  func(TimeoutError) { timeouts++ },
		OnRetry:    func(n int) { retries = append(retries, n) },
	})

	var terr *TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if terr.Type != op.TypeLint || terr.Timeout != 20*time.Millisecond {
		t.Errorf("TimeoutError carries %q/%v", terr.Type, terr.Timeout)
	}
	if attempts != 3 {
		t.Errorf("total attempts %d, want MaxRetries+1 = 3", attempts)
	}
	if timeouts != 3 {
		t.Errorf("OnTimeout fired %d times, want 3", timeouts)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("OnRetry attempts %v, want [1 2]", retries)
	}
	if len(notifier.notified) != 3 {
		t.Errorf("notifier saw %d timeouts, want 3", len(notifier.notified))
	}
}

func TestExecuteNonTimeoutErrorNotRetried(t *testing.T) {
	e := New(shortPolicy(), nil, nil)
	attempts := 0
	boom := errors.New("boom")

	err := e.Execute(context.Background(), "op-1", func(ctx context.Context) error {
		attempts++
		return boom
	}, Options{Type: op.TypeLint, MaxRetries: 5, RetryDelay: time.Millisecond})

	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("non-timeout failure retried: %d attempts", attempts)
	}
}

func TestExecuteUserInputNeverTimesOut(t *testing.T) {
	// Policy deliberately has no user-input entry: it must not be consulted.
	e := New(shortPolicy(), nil, nil)

	start := time.Now()
	err := e.Execute(context.Background(), "op-1", func(ctx context.Context) error {
		// Outlives every policy timeout; a deadline would cancel ctx.
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, Options{Type: op.TypeUserInput, MaxRetries: 0})

	if err != nil {
		t.Fatalf("user-input wait was interrupted after %v: %v", time.Since(start), err)
	}
}

func TestExecuteUncoveredTypeFailsFast(t *testing.T) {
	e := New(shortPolicy(), nil, nil)
	ran := false
	err := e.Execute(context.Background(), "op-1", func(ctx context.Context) error {
		ran = true
		return nil
	}, Options{Type: op.TypeBuild})
	if err == nil {
		t.Fatal("expected configuration error for uncovered type")
	}
	if ran {
		t.Error("operation must not run without a timeout policy")
	}
}

func TestExecuteParentCancellation(t *testing.T) {
	e := New(shortPolicy(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Execute(ctx, "op-1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Type: op.TypeLint, MaxRetries: 2, RetryDelay: time.Millisecond})

	// Parent cancellation is not a per-attempt timeout; no retry loop.
	if IsTimeout(err) {
		t.Errorf("parent cancellation misclassified as timeout: %v", err)
	}
}

func TestLoopDetectionResetOnSuccess(t *testing.T) {
	detector := NewProgressDetector()
	e := New(shortPolicy(), nil, detector)

	err := e.ExecuteWithLoopDetection(context.Background(), "op-ok",
		func(ctx context.Context, checkpoint func()) error {
			checkpoint()
			checkpoint()
			return nil
		}, Options{Type: op.TypeTest})
	if err != nil {
		t.Fatal(err)
	}
	if n := detector.Checkpoints("op-ok"); n != 0 {
		t.Errorf("detector state not reset after success: %d checkpoints", n)
	}
}

func TestLoopDetectionPreservedOnFailure(t *testing.T) {
	detector := NewProgressDetector()
	e := New(shortPolicy(), nil, detector)

	err := e.ExecuteWithLoopDetection(context.Background(), "op-bad",
		func(ctx context.Context, checkpoint func()) error {
			checkpoint()
			return errors.New("exit 1")
		}, Options{Type: op.TypeTest})
	if err == nil {
		t.Fatal("expected failure")
	}
	if n := detector.Checkpoints("op-bad"); n != 1 {
		t.Errorf("detector state after failure = %d checkpoints, want 1 (preserved)", n)
	}
}
