// Package triage classifies incoming support emails by keyword heuristics:
// sentiment, category, priority, and whether the mail is support-related at
// all. It runs before any model call so filtering and queue ordering never
// depend on an external service.
package triage

import (
	"log/slog"
	"strings"
)

// Sentiment is the coarse tone of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Priority is the queue ordering class of a message.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
)

// DefaultSupportKeywords marks a mail as support-related.
var DefaultSupportKeywords = []string{
	"support", "help", "query", "request", "issue",
	"problem", "urgent", "asap", "immediately", "critical",
}

// DefaultUrgentKeywords escalates a mail to urgent priority.
var DefaultUrgentKeywords = []string{
	"urgent", "critical", "asap", "immediately", "emergency",
	"cannot access", "not working", "down", "broken", "error",
}

var positiveKeywords = []string{
	"thank", "appreciate", "great", "excellent", "good", "pleased", "satisfied",
}

var negativeKeywords = []string{
	"urgent", "critical", "problem", "issue", "error", "frustrated", "angry", "broken",
}

// categoryKeywords maps knowledge-base categories to trigger words. Order
// matters only for ties; the first listed category wins.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"account", []string{"account", "login", "password", "access", "sign in", "locked out"}},
	{"billing", []string{"billing", "payment", "invoice", "charge", "refund", "subscription"}},
	{"technical", []string{"error", "bug", "crash", "broken", "not working", "down"}},
	{"product", []string{"feature", "request", "suggestion", "improvement"}},
}

// CategoryGeneral is assigned when no category keywords match.
const CategoryGeneral = "general"

// Analysis is the triage verdict for one email.
type Analysis struct {
	IsSupport      bool
	Sentiment      Sentiment
	SentimentScore float64 // in [-1, 1]
	Category       string
	Priority       Priority
}

// Analyzer classifies emails using configurable keyword lists.
type Analyzer struct {
	supportKeywords []string
	urgentKeywords  []string
	logger          *slog.Logger
}

// NewAnalyzer creates an analyzer. Empty keyword slices fall back to the
// defaults.
func NewAnalyzer(supportKeywords, urgentKeywords []string, logger *slog.Logger) *Analyzer {
	if len(supportKeywords) == 0 {
		supportKeywords = DefaultSupportKeywords
	}
	if len(urgentKeywords) == 0 {
		urgentKeywords = DefaultUrgentKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		supportKeywords: lower(supportKeywords),
		urgentKeywords:  lower(urgentKeywords),
		logger:          logger,
	}
}

// Analyze classifies one email from its subject and body.
func (a *Analyzer) Analyze(subject, body string) Analysis {
	text := strings.ToLower(subject + " " + body)

	analysis := Analysis{
		IsSupport: containsAny(text, a.supportKeywords),
		Category:  classifyCategory(text),
		Priority:  PriorityNormal,
	}
	if containsAny(text, a.urgentKeywords) {
		analysis.Priority = PriorityUrgent
	}
	analysis.Sentiment, analysis.SentimentScore = classifySentiment(text)

	a.logger.Debug("triaged email",
		"support", analysis.IsSupport, "category", analysis.Category,
		"priority", analysis.Priority, "sentiment", analysis.Sentiment)
	return analysis
}

// IsSupport reports whether the email matches any support keyword.
func (a *Analyzer) IsSupport(subject, body string) bool {
	return containsAny(strings.ToLower(subject+" "+body), a.supportKeywords)
}

func classifySentiment(text string) (Sentiment, float64) {
	positive := countMatches(text, positiveKeywords)
	negative := countMatches(text, negativeKeywords)

	switch {
	case negative > positive:
		return SentimentNegative, -0.6
	case positive > negative:
		return SentimentPositive, 0.6
	default:
		return SentimentNeutral, 0
	}
}

func classifyCategory(text string) string {
	best := CategoryGeneral
	bestCount := 0
	for _, entry := range categoryKeywords {
		if count := countMatches(text, entry.words); count > bestCount {
			best = entry.category
			bestCount = count
		}
	}
	return best
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			count++
		}
	}
	return count
}

func lower(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, keyword := range keywords {
		out[i] = strings.ToLower(keyword)
	}
	return out
}
