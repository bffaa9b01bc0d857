// Package cmd provides the replymate CLI commands.
//
// Commands:
//   - respond: answer a single query against the knowledge base
//   - process: run the email pipeline over a mailbox file
//   - kb: manage knowledge documents (add, list, delete, import, seed)
//   - stats: show email and response statistics
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the replymate CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "respond":
		return runRespond(os.Args[2:])
	case "process":
		return runProcess(os.Args[2:])
	case "kb":
		return runKB(os.Args[2:])
	case "stats":
		return runStats()
	case "version", "--version", "-v":
		return runVersion()
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Replymate - customer support email assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  replymate respond <query>        Draft a reply to one query")
	fmt.Println("  replymate process <mailbox.json> Fetch, triage, and answer a mailbox file")
	fmt.Println("  replymate kb add [flags]         Add a knowledge document")
	fmt.Println("  replymate kb list [category]     List knowledge documents")
	fmt.Println("  replymate kb delete <id>         Delete a knowledge document")
	fmt.Println("  replymate kb import <dir>        Import .txt/.md/.json files")
	fmt.Println("  replymate kb seed                Install the starter FAQ corpus")
	fmt.Println("  replymate stats                  Show email and response statistics")
	fmt.Println("  replymate --version              Show version information")
	fmt.Println("  replymate --help                 Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY          Required for the gemini provider")
	fmt.Println("  REPLYMATE_DB_PATH       Override the SQLite database path")
	fmt.Println("  REPLYMATE_LOG_LEVEL     debug, info, warn, or error")
	fmt.Println("  REPLYMATE_RATE_LIMIT    Max generation calls per second")
}
