package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/harness"
	"github.com/aristath/taskflow/internal/journal"
	"github.com/aristath/taskflow/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()

	// Surface queue activity while the run is in flight.
	sub := bus.SubscribeAll(1024)
	go func() {
		for ev := range sub.C {
			if ev.EventType() == events.EventTypeQueueDrained {
				log.Printf("queue drained")
			}
		}
	}()

	var breakers *queue.BreakerRegistry
	if cfg.Breaker.ConsecutiveFailures > 0 {
		breakers = queue.NewBreakerRegistry(queue.BreakerSettings{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
			HalfOpenRequests:    cfg.Breaker.HalfOpenRequests,
		})
	}

	report, err := harness.Run(ctx, harness.Config{
		Tasks:           cfg.Harness.Tasks,
		MaxDeps:         cfg.Harness.MaxDeps,
		Preconditions:   cfg.Harness.Preconditions,
		Finishers:       cfg.Harness.Finishers,
		Cancellers:      cfg.Harness.Cancellers,
		Seed:            cfg.Harness.Seed,
		Workers:         cfg.Queue.Workers,
		EvalConcurrency: cfg.Queue.EvalConcurrency,
		Breakers:        breakers,
	}, bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.JournalPath != "" {
		if err := recordRun(ctx, cfg.JournalPath, report); err != nil {
			log.Printf("WARNING: failed to record run: %v", err)
		}
	}

	fmt.Print(formatReport(report))
	if len(report.Anomalies) > 0 {
		os.Exit(1)
	}
}

// recordRun appends the run summary to the SQLite journal.
func recordRun(ctx context.Context, path string, report *harness.Report) error {
	store, err := journal.NewSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.RecordRun(ctx, journal.Run{
		Seed:      report.Seed,
		Tasks:     report.Tasks,
		Finished:  report.Finished,
		Cancelled: report.Cancelled,
		Errors:    report.Errors,
		Anomalies: len(report.Anomalies),
		Duration:  report.Duration,
	})
	return err
}

// formatReport renders a run report for the terminal.
func formatReport(report *harness.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seed=%d tasks=%d finished=%d cancelled=%d with-errors=%d duration=%s\n",
		report.Seed, report.Tasks, report.Finished, report.Cancelled,
		report.Errors, report.Duration.Round(time.Millisecond))
	if len(report.Anomalies) == 0 {
		b.WriteString("no anomalies\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d ANOMALIES:\n", len(report.Anomalies))
	for _, a := range report.Anomalies {
		fmt.Fprintf(&b, "  - %s\n", a)
	}
	return b.String()
}
