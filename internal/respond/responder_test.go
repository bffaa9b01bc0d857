package respond_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/knowledge"
	"github.com/replymate/replymate/internal/log"
	"github.com/replymate/replymate/internal/rag"
	"github.com/replymate/replymate/internal/respond"
	"github.com/replymate/replymate/internal/testutil"
	"github.com/replymate/replymate/internal/vector"
)

func testPolicy() backoff.Policy {
	return backoff.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func testOptions() respond.Options {
	return respond.Options{
		TopK:          3,
		MinScore:      0.3,
		ContextBudget: 2000,
		Retry:         testPolicy(),
	}
}

// stubRetriever returns fixed results without touching an index.
type stubRetriever struct {
	results []rag.ScoredDocument
	err     error
}

func (s *stubRetriever) Retrieve(context.Context, string, int, float64) ([]rag.ScoredDocument, error) {
	return s.results, s.err
}

func scoredDoc(id, title, body string, score float64) rag.ScoredDocument {
	return rag.ScoredDocument{
		Document: knowledge.Document{
			ID:        id,
			Title:     title,
			Body:      body,
			Category:  "general",
			UpdatedAt: time.Now(),
		},
		Score: score,
	}
}

func TestResponder_GroundedReply(t *testing.T) {
	ctx := context.Background()

	embedder := &testutil.HashEmbedder{}
	index := vector.NewMemory()
	queries := knowledge.NewSQLiteQuerier(testutil.OpenTestDB(t))
	store := knowledge.New(queries, embedder, index,
		[]string{"account", "billing"}, testPolicy(), log.NewNop())
	retriever := rag.NewRetriever(embedder, index, store, testPolicy(), log.NewNop())

	docA, err := store.Put(ctx, knowledge.Document{
		Title:    "Password Reset Steps",
		Body:     "I forgot my password: use the forgot password link on the login page to reset it.",
		Category: "account",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Put(ctx, knowledge.Document{
		Title:    "Refund Policy",
		Body:     "Refunds are processed within five to seven business days.",
		Category: "billing",
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	generator := &testutil.ScriptedGenerator{
		Rules: []testutil.ScriptedRule{
			{Contains: "password", Reply: genai.Generation{Text: "Please use the forgot password link on the login page to reset your password."}},
		},
	}
	responder := respond.New(retriever, generator, testOptions(), log.NewNop())

	result, err := responder.Handle(ctx, respond.Request{
		Query:     "I forgot my password",
		Sender:    "Jane Doe <jane@example.com>",
		Sentiment: "neutral",
		Category:  "account",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.State != respond.StateSucceeded {
		t.Errorf("State = %v, want %v", result.State, respond.StateSucceeded)
	}
	if result.FallbackUsed {
		t.Error("FallbackUsed = true, want grounded reply")
	}
	if !strings.Contains(result.ReplyText, "password") {
		t.Errorf("ReplyText = %q, want a reply referencing password reset", result.ReplyText)
	}
	if len(result.UsedDocumentIDs) == 0 || result.UsedDocumentIDs[0] != docA.ID {
		t.Errorf("UsedDocumentIDs = %v, want %q first", result.UsedDocumentIDs, docA.ID)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Errorf("Confidence = %v, want within (0, 1]", result.Confidence)
	}

	reqs := generator.Requests()
	if len(reqs) != 1 {
		t.Fatalf("generator called %d times, want 1", len(reqs))
	}
	if len(reqs[0].Context) == 0 || reqs[0].Context[0].Title != docA.Title {
		t.Errorf("generation context = %+v, want %q first", reqs[0].Context, docA.Title)
	}
}

func TestResponder_EmptyCorpusFallback(t *testing.T) {
	generator := &testutil.ScriptedGenerator{}
	responder := respond.New(&stubRetriever{}, generator, testOptions(), log.NewNop())

	result, err := responder.Handle(context.Background(), respond.Request{
		Query:  "anything",
		Sender: "someone@example.com",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.State != respond.StateFallback {
		t.Errorf("State = %v, want %v", result.State, respond.StateFallback)
	}
	if !result.FallbackUsed {
		t.Error("FallbackUsed = false, want true")
	}
	if result.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", result.Confidence)
	}
	if !strings.Contains(result.ReplyText, "Dear Customer") {
		t.Errorf("ReplyText = %q, want templated escalation reply", result.ReplyText)
	}
	if len(result.UsedDocumentIDs) != 0 {
		t.Errorf("UsedDocumentIDs = %v, want none", result.UsedDocumentIDs)
	}
}

func TestResponder_EmptyBundleWithQualitySignalSucceeds(t *testing.T) {
	generator := &testutil.ScriptedGenerator{
		Default: genai.Generation{
			Text:          "General guidance reply.",
			QualitySignal: testutil.QualityPtr(0.8),
		},
	}
	responder := respond.New(&stubRetriever{}, generator, testOptions(), log.NewNop())

	result, err := responder.Handle(context.Background(), respond.Request{Query: "anything"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.State != respond.StateSucceeded {
		t.Errorf("State = %v, want %v", result.State, respond.StateSucceeded)
	}
	// topScore 0 and quality 0.8 under the 0.6/0.4 weighting.
	if got, want := result.Confidence, 0.4*0.8; got != want {
		t.Errorf("Confidence = %v, want %v", got, want)
	}
}

func TestResponder_GenerationFailsAfterRetries(t *testing.T) {
	generator := &testutil.ScriptedGenerator{Err: genai.ErrGenerationUnavailable}
	responder := respond.New(
		&stubRetriever{results: []rag.ScoredDocument{scoredDoc("a", "A", "alpha", 0.9)}},
		generator, testOptions(), log.NewNop())

	result, err := responder.Handle(context.Background(), respond.Request{Query: "anything"})
	if !errors.Is(err, genai.ErrGenerationUnavailable) {
		t.Fatalf("Handle() error = %v, want %v", err, genai.ErrGenerationUnavailable)
	}
	if result.State != respond.StateFailed {
		t.Errorf("State = %v, want %v", result.State, respond.StateFailed)
	}
	if result.ReplyText != "" {
		t.Errorf("ReplyText = %q, want no partial reply on failure", result.ReplyText)
	}
	if calls := len(generator.Requests()); calls != 3 {
		t.Errorf("generator called %d times, want MaxAttempts=3", calls)
	}
}

func TestResponder_TransientGenerationFailureRecovers(t *testing.T) {
	generator := &testutil.ScriptedGenerator{
		Err:       genai.ErrGenerationUnavailable,
		FailFirst: 1,
		Default:   genai.Generation{Text: "Recovered reply."},
	}
	responder := respond.New(
		&stubRetriever{results: []rag.ScoredDocument{scoredDoc("a", "A", "alpha", 0.9)}},
		generator, testOptions(), log.NewNop())

	result, err := responder.Handle(context.Background(), respond.Request{Query: "anything"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if result.State != respond.StateSucceeded {
		t.Errorf("State = %v, want %v", result.State, respond.StateSucceeded)
	}
}

func TestResponder_RetrievalFailureFails(t *testing.T) {
	responder := respond.New(
		&stubRetriever{err: genai.ErrEmbeddingUnavailable},
		&testutil.ScriptedGenerator{}, testOptions(), log.NewNop())

	result, err := responder.Handle(context.Background(), respond.Request{Query: "anything"})
	if !errors.Is(err, genai.ErrEmbeddingUnavailable) {
		t.Fatalf("Handle() error = %v, want %v", err, genai.ErrEmbeddingUnavailable)
	}
	if result.State != respond.StateFailed {
		t.Errorf("State = %v, want %v", result.State, respond.StateFailed)
	}
}

func TestResponder_TimeoutCancels(t *testing.T) {
	generator := &testutil.ScriptedGenerator{Err: genai.ErrGenerationUnavailable}
	opts := testOptions()
	opts.Retry = backoff.Policy{
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     time.Second,
	}
	responder := respond.New(
		&stubRetriever{results: []rag.ScoredDocument{scoredDoc("a", "A", "alpha", 0.9)}},
		generator, opts, log.NewNop())

	result, err := responder.Handle(context.Background(), respond.Request{
		Query:   "anything",
		Timeout: 20 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Handle() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if result.State != respond.StateCancelled {
		t.Errorf("State = %v, want %v", result.State, respond.StateCancelled)
	}
	if result.ReplyText != "" || result.Confidence != 0 {
		t.Errorf("cancelled result = %+v, want no partial reply", result)
	}
}

func TestResponder_CircuitOpensAfterSustainedFailures(t *testing.T) {
	generator := &testutil.ScriptedGenerator{Err: genai.ErrGenerationUnavailable}
	opts := testOptions()
	opts.Retry.MaxAttempts = 1
	opts.Circuit = respond.CircuitConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Cooloff:          time.Hour,
	}
	responder := respond.New(
		&stubRetriever{results: []rag.ScoredDocument{scoredDoc("a", "A", "alpha", 0.9)}},
		generator, opts, log.NewNop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := responder.Handle(ctx, respond.Request{Query: "q"}); err == nil {
			t.Fatalf("Handle() %d: expected failure", i)
		}
	}

	_, err := responder.Handle(ctx, respond.Request{Query: "q"})
	if !errors.Is(err, respond.ErrCircuitOpen) {
		t.Fatalf("Handle() error = %v, want %v", err, respond.ErrCircuitOpen)
	}
	if calls := len(generator.Requests()); calls != 2 {
		t.Errorf("generator called %d times, want 2 (third call shielded)", calls)
	}
}

func TestFallbackReply(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		wantName string
	}{
		{name: "name with address", sender: "Jane Doe <jane@example.com>", wantName: "Jane Doe"},
		{name: "bare address", sender: "jane@example.com", wantName: "Customer"},
		{name: "empty sender", sender: "", wantName: "Customer"},
		{name: "plain name", sender: "Jane Doe", wantName: "Jane Doe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := respond.FallbackReply(tt.sender)
			if !strings.HasPrefix(reply, "Dear "+tt.wantName+",") {
				t.Errorf("FallbackReply(%q) starts with %q, want greeting for %q",
					tt.sender, reply[:strings.IndexByte(reply, '\n')], tt.wantName)
			}
			if !strings.Contains(reply, "Support Team") {
				t.Error("FallbackReply() missing signature")
			}
		})
	}
}
