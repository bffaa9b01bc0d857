package cmd

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/replymate/replymate/internal/respond"
)

// runRespond answers a single query from the command line and prints the
// drafted reply with its confidence and provenance.
func runRespond(args []string) error {
	fs := flag.NewFlagSet("respond", flag.ContinueOnError)
	sender := fs.String("sender", "", "sender header used to personalize fallbacks")
	sentiment := fs.String("sentiment", "neutral", "sentiment hint for the generator")
	category := fs.String("category", "general", "category hint for the generator")
	timeout := fs.Duration("timeout", 60*time.Second, "overall time budget")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: replymate respond [flags] <query>")
	}
	query := strings.Join(fs.Args(), " ")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.responder.Handle(ctx, respond.Request{
		Query:     query,
		Sender:    *sender,
		Sentiment: *sentiment,
		Category:  *category,
		Timeout:   *timeout,
	})
	if err != nil {
		return fmt.Errorf("could not generate a response: %w", err)
	}

	fmt.Println(result.ReplyText)
	fmt.Println()
	fmt.Printf("State: %s\n", result.State)
	fmt.Printf("Confidence: %.2f\n", result.Confidence)
	if result.FallbackUsed {
		fmt.Println("Fallback: yes (no grounded knowledge was used)")
	}
	if len(result.UsedDocumentIDs) > 0 {
		fmt.Printf("Sources: %s\n", strings.Join(result.UsedDocumentIDs, ", "))
	}
	return nil
}
