// Command replay re-decides the logged decision history with the
// current selector and reports drift. A clean run means selection is
// still deterministic and unchanged; drift rows mean the weighting or
// baselines moved since those decisions were made. Exits non-zero when
// drift exceeds the threshold.
package main

import (
	"flag"
	"fmt"
	"os"

	"opsched/internal/catalog"
	"opsched/internal/history"
	"opsched/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "scheduler.db", "scheduler database path")
	limit := flag.Int("limit", 500, "maximum decisions to replay")
	maxDrift := flag.Float64("max-drift", 0, "tolerated drift rate before failing")
	flag.Parse()

	store, err := history.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	report, err := replay.Run(store, catalog.New(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("replayed %d decisions: %d matched, %d drifted (%.1f%%)\n",
		report.Total, report.Matched, len(report.Drifts), report.DriftRate()*100)
	for _, d := range report.Drifts {
		fmt.Printf("  %s %s (%s): logged %s, now %s\n",
			d.DecisionID, d.OperationName, d.OperationType, d.Logged, d.Current)
	}

	if report.DriftRate() > *maxDrift {
		os.Exit(1)
	}
}

// #endregion main
