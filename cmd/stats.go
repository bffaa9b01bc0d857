package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
)

// runStats prints email and response statistics from the database.
func runStats() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	analytics, err := app.mails.Analytics(ctx)
	if err != nil {
		return fmt.Errorf("loading analytics: %w", err)
	}
	docs, err := app.store.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Knowledge documents: %d\n", docs)
	fmt.Println()
	fmt.Printf("Emails: %d\n", analytics.TotalEmails)
	printCounts(analytics.EmailsByStatus)
	if len(analytics.EmailsByCat) > 0 {
		fmt.Println()
		fmt.Println("By category:")
		printCounts(analytics.EmailsByCat)
	}
	fmt.Println()
	fmt.Printf("Responses: %d (%d sent)\n", analytics.TotalResponses, analytics.SentCount)
	if analytics.TotalResponses > 0 {
		fmt.Printf("  Avg confidence: %.2f\n", analytics.AvgConfidence)
		fmt.Printf("  Fallback rate:  %.0f%%\n", analytics.FallbackRate*100)
	}
	if analytics.UrgentBacklog > 0 {
		fmt.Printf("\nUrgent backlog: %d emails awaiting a reply\n", analytics.UrgentBacklog)
	}
	return nil
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-10s %d\n", k, counts[k])
	}
}
