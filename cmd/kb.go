package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/replymate/replymate/internal/knowledge"
)

// runKB dispatches knowledge-base subcommands.
func runKB(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: replymate kb <add|list|delete|import|seed>")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	switch args[0] {
	case "add":
		return runKBAdd(ctx, app, args[1:])
	case "list":
		return runKBList(ctx, app, args[1:])
	case "delete":
		return runKBDelete(ctx, app, args[1:])
	case "import":
		return runKBImport(ctx, app, args[1:])
	case "seed":
		return runKBSeed(ctx, app)
	default:
		return fmt.Errorf("unknown kb subcommand: %s", args[0])
	}
}

func runKBAdd(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("kb add", flag.ContinueOnError)
	title := fs.String("title", "", "document title (required)")
	category := fs.String("category", "general", "document category")
	tags := fs.String("tags", "", "comma-separated tags")
	body := fs.String("body", "", "document body; use -file to read from disk instead")
	file := fs.String("file", "", "read the body from this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := *body
	if *file != "" {
		content, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("reading body file: %w", err)
		}
		text = string(content)
	}

	var tagList []string
	if *tags != "" {
		tagList = strings.Split(*tags, ",")
	}

	doc, err := app.store.Put(ctx, knowledge.Document{
		Title:    *title,
		Body:     text,
		Category: *category,
		Tags:     tagList,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Added document %s (%s)\n", doc.ID, doc.Title)
	return nil
}

func runKBList(ctx context.Context, app *app, args []string) error {
	filter := knowledge.Filter{}
	if len(args) > 0 {
		filter.Category = args[0]
	}

	docs, err := app.store.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	for _, doc := range docs {
		line := fmt.Sprintf("%s  [%s]  %s", doc.ID, doc.Category, doc.Title)
		if len(doc.Tags) > 0 {
			line += "  (" + strings.Join(doc.Tags, ", ") + ")"
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d document(s)\n", len(docs))
	return nil
}

func runKBDelete(ctx context.Context, app *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: replymate kb delete <id>")
	}
	if err := app.store.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted document %s\n", args[0])
	return nil
}

func runKBImport(ctx context.Context, app *app, args []string) error {
	fs := flag.NewFlagSet("kb import", flag.ContinueOnError)
	category := fs.String("category", "general", "category for plain-text files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: replymate kb import [flags] <directory>")
	}

	importer := knowledge.NewImporter(app.store, *category)
	result, err := importer.ImportDirectory(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d file(s), skipped %d, failed %d in %s\n",
		result.FilesAdded, result.FilesSkipped, result.FilesFailed, result.Duration.Round(time.Millisecond))
	return nil
}

func runKBSeed(ctx context.Context, app *app) error {
	if err := app.store.Seed(ctx); err != nil {
		return err
	}
	count, err := app.store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Knowledge base holds %d document(s)\n", count)
	return nil
}
