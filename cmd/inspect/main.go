// Command inspect dumps the scheduler's learned state: catalog
// profiles after warming, recent outcomes, logged decisions, and the
// automation attempt ledger.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"opsched/internal/catalog"
	"opsched/internal/guard"
	"opsched/internal/history"
)

// #region main

func main() {
	dbPath := flag.String("db", "scheduler.db", "scheduler database path")
	limit := flag.Int("limit", 20, "rows to show per section")
	flag.Parse()

	store, err := history.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	cat := catalog.New()
	if err := store.WarmCatalog(cat); err != nil {
		fmt.Fprintf(os.Stderr, "warm catalog: %v\n", err)
		os.Exit(1)
	}

	printProfiles(cat)
	if err := printOutcomes(store, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "outcomes: %v\n", err)
		os.Exit(1)
	}
	if err := printDecisions(store, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "decisions: %v\n", err)
		os.Exit(1)
	}
	if err := printAttempts(store); err != nil {
		fmt.Fprintf(os.Stderr, "attempts: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region sections

func printProfiles(cat *catalog.Catalog) {
	fmt.Println("== profiles (after warming) ==")
	profiles := cat.Snapshot()
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Type < profiles[j].Type })
	for _, p := range profiles {
		fmt.Printf("%-10s speed=%.1f reliability=%.1f risk=%-8s clarity=%.1f automation=%.1f\n",
			p.Type, p.Performance.Speed, p.Safety.Reliability, p.Safety.RiskLevel,
			p.Usability.Clarity, p.Usability.Automation)
	}
}

func printOutcomes(store *history.Store, limit int) error {
	fmt.Println("\n== recent outcomes ==")
	outcomes, err := store.RecentOutcomes(limit)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		fmt.Printf("%s  %-10s %-12s success=%-5v %8v  %s\n",
			o.CreatedAt.Format("2006-01-02 15:04:05"), o.OperationType, o.Strategy,
			o.Success, o.Duration, o.OperationName)
	}
	if len(outcomes) == 0 {
		fmt.Println("(none)")
	}
	return nil
}

func printDecisions(store *history.Store, limit int) error {
	fmt.Println("\n== logged decisions ==")
	decisions, err := store.Decisions(limit)
	if err != nil {
		return err
	}
	for _, d := range decisions {
		fmt.Printf("%s  %-10s → %-12s %s\n",
			d.CreatedAt.Format("2006-01-02 15:04:05"), d.OperationType, d.Strategy, d.Reasoning)
	}
	if len(decisions) == 0 {
		fmt.Println("(none)")
	}
	return nil
}

func printAttempts(store *history.Store) error {
	fmt.Println("\n== automation attempts by command ==")
	ledger, err := guard.NewLedger(store.DB())
	if err != nil {
		return err
	}
	stats, err := ledger.AttemptStats()
	if err != nil {
		return err
	}
	for _, st := range stats {
		fmt.Printf("%-20s attempts=%-4d failures=%-4d last=%s\n",
			st.BaseCommand, st.Attempts, st.Failures, st.LastSeen.Format("2006-01-02 15:04:05"))
	}
	if len(stats) == 0 {
		fmt.Println("(none)")
	}
	return nil
}

// #endregion sections
