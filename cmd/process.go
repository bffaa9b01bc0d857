package cmd

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/replymate/replymate/internal/pipeline"
	"github.com/replymate/replymate/internal/queue"
	"github.com/replymate/replymate/internal/triage"
)

// runProcess runs the full email flow over a mailbox file: fetch, triage,
// queue by priority, and draft replies with a worker pool.
func runProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	workers := fs.Int("workers", 2, "concurrent responder workers")
	timeout := fs.Duration("timeout", 60*time.Second, "per-email time budget")
	retries := fs.Int("retries", queue.DefaultMaxRetries, "requeue budget for failing emails")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: replymate process [flags] <mailbox.json>")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	processor := pipeline.New(
		&pipeline.FileFetcher{Path: fs.Arg(0)},
		app.mails,
		triage.NewAnalyzer(app.cfg.SupportKeywords, app.cfg.UrgentKeywords, app.logger),
		queue.New(*retries, app.logger),
		app.responder,
		pipeline.Options{Workers: *workers, HandleTimeout: *timeout},
		app.logger,
	)

	started := time.Now()
	summary, err := processor.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("processing mailbox: %w", err)
	}

	fmt.Printf("Processed %d emails in %s\n", summary.Fetched, time.Since(started).Round(time.Millisecond))
	fmt.Printf("  Saved:      %d\n", summary.Saved)
	fmt.Printf("  Duplicate:  %d\n", summary.Duplicate)
	fmt.Printf("  Ignored:    %d\n", summary.Ignored)
	fmt.Printf("  Responded:  %d\n", summary.Responded)
	fmt.Printf("  Fallbacks:  %d\n", summary.Fallbacks)
	fmt.Printf("  Failed:     %d\n", summary.Failed)
	return nil
}
