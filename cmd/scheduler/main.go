package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"opsched/internal/cache"
	"opsched/internal/catalog"
	"opsched/internal/console"
	"opsched/internal/dispatch"
	"opsched/internal/guard"
	"opsched/internal/history"
	"opsched/internal/op"
	"opsched/internal/policy"
	"opsched/internal/queue"
)

// #region main
func main() {
	dbPath := envOr("SCHEDULER_DB", "scheduler.db")
	policyPath := os.Getenv("SCHEDULER_POLICY")
	workDir := envOr("SCHEDULER_WORKDIR", "")
	adaptive := envOr("SCHEDULER_ADAPTIVE", "true") != "false"

	pol, err := loadPolicy(policyPath)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	cat := catalog.New()
	if err := store.WarmCatalog(cat); err != nil {
		log.Printf("warm catalog: %v", err)
	}

	ledger, err := guard.NewLedger(store.DB())
	if err != nil {
		log.Fatalf("failed to open attempt ledger: %v", err)
	}

	resultCache, err := cache.New()
	if err != nil {
		log.Fatalf("failed to open cache: %v", err)
	}
	defer resultCache.Close()

	learner := history.NewLearner(cat, store)

	var sched *dispatch.Scheduler
	monitor := queue.NewLoadMonitor(func() int {
		if sched == nil {
			return 0
		}
		return sched.ActiveCount()
	})
	monitor.Start()
	defer monitor.Stop()

	sched, err = dispatch.New(dispatch.Config{
		Catalog:  cat,
		Policy:   pol,
		Guard:    guard.New(ledger),
		Cache:    resultCache,
		Learner:  learner,
		Approver: console.NewApprover(os.Stdin, os.Stdout),
		Notifier: console.Notifier{},
		Adaptive: adaptive,
		WorkDir:  workDir,
		LoadFn:   monitor.Current,
		OnProgress: func(p op.Progress) {
			log.Printf("[PROGRESS] %s %s: %s", p.OperationID, p.Stage, p.Message)
		},
	})
	if err != nil {
		log.Fatalf("failed to build scheduler: %v", err)
	}
	defer sched.Close()

	fmt.Println("Operation scheduler ready.")
	fmt.Printf("  DB: %s | adaptive: %v\n", dbPath, adaptive)
	fmt.Println("Commands: run <type> <name> -- <command>, status, recommend, quit")

	scanner := bufio.NewScanner(os.Stdin)
	opNum := 0

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		switch {
		case line == "status":
			printStatus(sched.Status())
		case line == "recommend":
			recs := learner.Recommendations()
			if len(recs) == 0 {
				fmt.Println("no findings; recent history looks healthy")
			}
			for _, r := range recs {
				fmt.Println("  " + r)
			}
		case strings.HasPrefix(line, "run "):
			opNum++
			runCommand(sched, line, opNum)
		default:
			fmt.Println("unknown command")
		}
	}
}

// #endregion main

// #region run

func runCommand(sched *dispatch.Scheduler, line string, opNum int) {
	spec, command, ok := strings.Cut(strings.TrimPrefix(line, "run "), " -- ")
	if !ok {
		fmt.Println("usage: run <type> <name> -- <command>")
		return
	}
	fields := strings.Fields(spec)
	if len(fields) != 2 {
		fmt.Println("usage: run <type> <name> -- <command>")
		return
	}

	o := op.Operation{
		ID:       fmt.Sprintf("op-%d", opNum),
		Name:     fields[1],
		Type:     op.OperationType(fields[0]),
		Command:  strings.TrimSpace(command),
		Priority: op.PriorityP1,
	}

	ectx := op.DefaultContext()
	ectx.UserPresent = true

	result, err := sched.Execute(context.Background(), o, &ectx)
	if err != nil {
		log.Printf("run error: %v", err)
		return
	}
	fmt.Printf("[%s] success=%v strategy=%s duration=%v\n",
		o.ID, result.Success, result.Strategy, result.Duration)
	if result.Output != "" {
		fmt.Println(result.Output)
	}
}

// #endregion run

// #region helpers

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	return policy.Load(path, op.KnownTypes())
}

func printStatus(st dispatch.Status) {
	fmt.Printf("active=%d queued=%d pending-outcomes=%d cache hits=%d misses=%d entries=%d\n",
		st.ActiveOperations, st.QueuedOperations, st.PendingOutcomes,
		st.Cache.Hits, st.Cache.Misses, st.Cache.Entries)
	for _, r := range st.Recommendations {
		fmt.Println("  " + r)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
