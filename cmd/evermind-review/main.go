// Command evermind-review is a maintenance tool for the spaced-repetition
// scheduler: list records due for review, apply a review rating, and inspect
// a record's decay state and review history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evermind-ai/evermind/internal/config"
	"github.com/evermind-ai/evermind/internal/scheduler"
	"github.com/evermind-ai/evermind/internal/storage/sqlite"
	"github.com/evermind-ai/evermind/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to config file (optional, uses defaults and env vars)")
	dbPath     = flag.String("db", "", "Path to SQLite database file (overrides config)")
	dueCmd     = flag.Bool("due", false, "List records due for review and exit")
	dueLimit   = flag.Int("limit", 50, "Maximum records to list with -due")
	reviewID   = flag.String("review", "", "Record ID to review (requires -rating)")
	rating     = flag.String("rating", "", "Review rating: again, hard, good, easy")
	historyID  = flag.String("history", "", "Record ID whose review history to print and exit")
	stateID    = flag.String("state", "", "Record ID whose decay state to print and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dsn := filepath.Join(cfg.Storage.DataPath, "evermind.db")
	if *dbPath != "" {
		dsn = *dbPath
	}

	store, err := sqlite.Open(dsn)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", dsn, err)
	}
	defer store.Close()

	sched := scheduler.New(store, func() config.SchedulerConfig { return cfg.Scheduler })
	ctx := context.Background()

	switch {
	case *dueCmd:
		listDue(ctx, store, sched, *dueLimit)
	case *reviewID != "":
		applyReview(ctx, sched, *reviewID, *rating)
	case *historyID != "":
		printHistory(ctx, sched, *historyID)
	case *stateID != "":
		printState(ctx, store, sched, *stateID)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func listDue(ctx context.Context, store *sqlite.Store, sched *scheduler.Scheduler, limit int) {
	ids, err := sched.Due(ctx, time.Now(), limit)
	if err != nil {
		log.Fatalf("Failed to list due records: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("No records due for review.")
		return
	}

	fmt.Printf("%-40s  %-10s  %12s  %14s\n", "RECORD", "STATE", "STABILITY", "RETRIEVABILITY")
	for _, id := range ids {
		state, err := store.GetDecayState(ctx, id)
		if err != nil {
			log.Printf("skipping %s: %v", id, err)
			continue
		}
		r, err := sched.Retrievability(ctx, id, time.Now())
		if err != nil {
			log.Printf("skipping %s: %v", id, err)
			continue
		}
		fmt.Printf("%-40s  %-10s  %12.2f  %14.3f\n", id, state.State, state.Stability, r)
	}
}

func applyReview(ctx context.Context, sched *scheduler.Scheduler, recordID, rating string) {
	r, err := parseRating(rating)
	if err != nil {
		log.Fatalf("%v", err)
	}

	state, err := sched.ApplyReview(ctx, recordID, r, time.Now())
	if err != nil {
		log.Fatalf("Failed to apply review: %v", err)
	}

	fmt.Printf("Reviewed %s as %s\n", recordID, r)
	fmt.Printf("  state:      %s\n", state.State)
	fmt.Printf("  stability:  %.2f days\n", state.Stability)
	fmt.Printf("  difficulty: %.2f\n", state.Difficulty)
	fmt.Printf("  next due:   %.1f days\n", state.ScheduledInterval)
}

func printHistory(ctx context.Context, sched *scheduler.Scheduler, recordID string) {
	events, err := sched.History(ctx, recordID)
	if err != nil {
		log.Fatalf("Failed to load review history: %v", err)
	}
	if len(events) == 0 {
		fmt.Printf("No reviews recorded for %s.\n", recordID)
		return
	}

	for _, ev := range events {
		fmt.Println(formatEvent(ev))
	}
}

func formatEvent(ev types.ReviewEvent) string {
	return fmt.Sprintf("%s  %-5s  stability %.2f -> %.2f  interval %.1fd",
		ev.Timestamp.Format(time.RFC3339), ev.Rating,
		ev.StabilityBefore, ev.StabilityAfter, ev.ScheduledDays)
}

func printState(ctx context.Context, store *sqlite.Store, sched *scheduler.Scheduler, recordID string) {
	state, err := store.GetDecayState(ctx, recordID)
	if err != nil {
		log.Fatalf("Failed to load decay state: %v", err)
	}
	r, err := sched.Retrievability(ctx, recordID, time.Now())
	if err != nil {
		log.Fatalf("Failed to compute retrievability: %v", err)
	}

	fmt.Printf("Record %s\n", recordID)
	fmt.Printf("  state:          %s\n", state.State)
	fmt.Printf("  stability:      %.2f days\n", state.Stability)
	fmt.Printf("  difficulty:     %.2f\n", state.Difficulty)
	fmt.Printf("  reps / lapses:  %d / %d\n", state.Reps, state.Lapses)
	fmt.Printf("  retrievability: %.3f\n", r)
	if state.LastReview != nil {
		fmt.Printf("  last review:    %s\n", state.LastReview.Format(time.RFC3339))
		fmt.Printf("  interval:       %.1f days\n", state.ScheduledInterval)
	}
}

func parseRating(s string) (types.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "again", "1":
		return types.RatingAgain, nil
	case "hard", "2":
		return types.RatingHard, nil
	case "good", "3":
		return types.RatingGood, nil
	case "easy", "4":
		return types.RatingEasy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q (want again, hard, good, or easy)", s)
	}
}
