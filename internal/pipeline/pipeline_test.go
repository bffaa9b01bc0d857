package pipeline_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/knowledge"
	"github.com/replymate/replymate/internal/log"
	"github.com/replymate/replymate/internal/mailstore"
	"github.com/replymate/replymate/internal/pipeline"
	"github.com/replymate/replymate/internal/queue"
	"github.com/replymate/replymate/internal/rag"
	"github.com/replymate/replymate/internal/respond"
	"github.com/replymate/replymate/internal/testutil"
	"github.com/replymate/replymate/internal/triage"
	"github.com/replymate/replymate/internal/vector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubFetcher returns a fixed batch on every call.
type stubFetcher struct {
	emails []mailstore.Email
	err    error
}

func (f *stubFetcher) Fetch(context.Context) ([]mailstore.Email, error) {
	return f.emails, f.err
}

type env struct {
	processor *pipeline.Processor
	mails     *mailstore.Store
	store     *knowledge.Store
	generator *testutil.ScriptedGenerator
	tasks     *queue.Queue
}

func policy() backoff.Policy {
	return backoff.Policy{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newEnv(t *testing.T, fetcher pipeline.Fetcher, generator *testutil.ScriptedGenerator, opts pipeline.Options) *env {
	t.Helper()

	sqlDB := testutil.OpenTestDB(t)
	embedder := &testutil.HashEmbedder{}
	index := vector.NewMemory()
	store := knowledge.New(knowledge.NewSQLiteQuerier(sqlDB), embedder, index,
		[]string{"account", "billing", "technical", "product", "general"}, policy(), log.NewNop())
	retriever := rag.NewRetriever(embedder, index, store, policy(), log.NewNop())
	responder := respond.New(retriever, generator, respond.Options{
		TopK:          3,
		MinScore:      0.3,
		ContextBudget: 2000,
		Retry:         policy(),
	}, log.NewNop())

	mails := mailstore.New(sqlDB, log.NewNop())
	tasks := queue.New(1, log.NewNop())
	analyzer := triage.NewAnalyzer(nil, nil, log.NewNop())
	processor := pipeline.New(fetcher, mails, analyzer, tasks, responder, opts, log.NewNop())

	return &env{processor: processor, mails: mails, store: store, generator: generator, tasks: tasks}
}

func email(messageID, sender, subject, body string, receivedAt time.Time) mailstore.Email {
	return mailstore.Email{
		MessageID:  messageID,
		Sender:     sender,
		Subject:    subject,
		Body:       body,
		ReceivedAt: receivedAt,
	}
}

func TestProcessor_RunOnce(t *testing.T) {
	base := time.Now().UTC()
	fetcher := &stubFetcher{emails: []mailstore.Email{
		email("m-normal", "Bob <bob@example.com>",
			"Help with invoice", "I have a question about a charge on my invoice.", base.Add(-2*time.Minute)),
		email("m-urgent", "Jane Doe <jane@example.com>",
			"URGENT: cannot access account", "I forgot my password and the login page shows an error.", base),
		email("m-news", "news@example.com",
			"Weekly digest", "Here is what happened this week.", base.Add(-time.Minute)),
	}}
	generator := &testutil.ScriptedGenerator{
		Rules: []testutil.ScriptedRule{
			{Contains: "password", Reply: genai.Generation{Text: "Use the password reset link on the login page."}},
		},
		Default: genai.Generation{Text: "Thanks for reaching out about your invoice."},
	}
	e := newEnv(t, fetcher, generator, pipeline.Options{Workers: 1, HandleTimeout: 5 * time.Second})
	ctx := context.Background()

	if _, err := e.store.Put(ctx, knowledge.Document{
		Title:    "Password Reset",
		Body:     "I forgot my password: use the password reset link on the login page.",
		Category: "account",
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	summary, err := e.processor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Fetched != 3 || summary.Saved != 3 {
		t.Errorf("summary = %+v, want 3 fetched and saved", summary)
	}
	if summary.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1 (newsletter)", summary.Ignored)
	}
	if summary.Responded != 2 {
		t.Errorf("Responded = %d, want 2", summary.Responded)
	}
	if summary.Failed != 0 {
		t.Errorf("Failed = %d, want 0", summary.Failed)
	}

	// The urgent email must be dequeued before the older normal one.
	reqs := generator.Requests()
	if len(reqs) != 2 {
		t.Fatalf("generator called %d times, want 2", len(reqs))
	}
	if !strings.Contains(reqs[0].Query, "cannot access account") {
		t.Errorf("first generated query = %q, want the urgent email", reqs[0].Query)
	}

	urgent, err := e.mails.GetEmailByMessageID(ctx, "m-urgent")
	if err != nil {
		t.Fatalf("GetEmailByMessageID() error = %v", err)
	}
	if urgent.Status != mailstore.EmailStatusResponded {
		t.Errorf("urgent email status = %q, want %q", urgent.Status, mailstore.EmailStatusResponded)
	}
	if urgent.Priority != "urgent" || urgent.Category != "account" {
		t.Errorf("urgent triage = (%q, %q), want (urgent, account)", urgent.Priority, urgent.Category)
	}

	responses, err := e.mails.ResponsesForEmail(ctx, urgent.ID)
	if err != nil {
		t.Fatalf("ResponsesForEmail() error = %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("got %d responses for urgent email, want 1", len(responses))
	}
	if responses[0].FallbackUsed {
		t.Error("urgent email got a fallback, want grounded reply")
	}
	if len(responses[0].UsedDocumentIDs) == 0 {
		t.Error("urgent response has no provenance")
	}

	news, err := e.mails.GetEmailByMessageID(ctx, "m-news")
	if err != nil {
		t.Fatalf("GetEmailByMessageID() error = %v", err)
	}
	if news.Status != mailstore.EmailStatusIgnored {
		t.Errorf("newsletter status = %q, want %q", news.Status, mailstore.EmailStatusIgnored)
	}
}

func TestProcessor_RunOnce_FallbackOnEmptyCorpus(t *testing.T) {
	fetcher := &stubFetcher{emails: []mailstore.Email{
		email("m1", "bob@example.com", "Need help", "I have a problem with something obscure.", time.Now().UTC()),
	}}
	e := newEnv(t, fetcher, &testutil.ScriptedGenerator{}, pipeline.Options{Workers: 1, HandleTimeout: 5 * time.Second})

	summary, err := e.processor.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Responded != 1 || summary.Fallbacks != 1 {
		t.Errorf("summary = %+v, want one fallback response", summary)
	}

	saved, err := e.mails.GetEmailByMessageID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetEmailByMessageID() error = %v", err)
	}
	responses, err := e.mails.ResponsesForEmail(context.Background(), saved.ID)
	if err != nil || len(responses) != 1 {
		t.Fatalf("ResponsesForEmail() = %v, %v, want one response", responses, err)
	}
	if !responses[0].FallbackUsed || responses[0].Confidence != 0 {
		t.Errorf("response = %+v, want flagged fallback with confidence 0", responses[0])
	}
}

func TestProcessor_RunOnce_SecondRunSkipsDuplicates(t *testing.T) {
	fetcher := &stubFetcher{emails: []mailstore.Email{
		email("m1", "bob@example.com", "Help please", "I have an issue with my account login.", time.Now().UTC()),
	}}
	e := newEnv(t, fetcher, &testutil.ScriptedGenerator{
		Default: genai.Generation{Text: "Reply.", QualitySignal: testutil.QualityPtr(0.7)},
	}, pipeline.Options{Workers: 1, HandleTimeout: 5 * time.Second})
	ctx := context.Background()

	if _, err := e.processor.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	summary, err := e.processor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if summary.Duplicate != 1 || summary.Saved != 0 || summary.Responded != 0 {
		t.Errorf("second run summary = %+v, want only a duplicate", summary)
	}
}

func TestProcessor_RunOnce_PermanentFailure(t *testing.T) {
	fetcher := &stubFetcher{emails: []mailstore.Email{
		email("m1", "bob@example.com", "Help please", "I have an issue with my account.", time.Now().UTC()),
	}}
	generator := &testutil.ScriptedGenerator{Err: genai.ErrGenerationUnavailable}
	e := newEnv(t, fetcher, generator, pipeline.Options{Workers: 1, HandleTimeout: 5 * time.Second})

	summary, err := e.processor.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Failed != 1 || summary.Responded != 0 {
		t.Errorf("summary = %+v, want one permanent failure", summary)
	}

	saved, err := e.mails.GetEmailByMessageID(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetEmailByMessageID() error = %v", err)
	}
	if saved.Status != mailstore.EmailStatusFailed {
		t.Errorf("email status = %q, want %q", saved.Status, mailstore.EmailStatusFailed)
	}
	responses, err := e.mails.ResponsesForEmail(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("ResponsesForEmail() error = %v", err)
	}
	if len(responses) != 0 {
		t.Errorf("got %d responses for failed email, want none", len(responses))
	}
}

func TestProcessor_RunOnce_ConcurrentWorkers(t *testing.T) {
	var emails []mailstore.Email
	for i := 0; i < 12; i++ {
		emails = append(emails, email(
			fmt.Sprintf("m%d", i), "bob@example.com",
			fmt.Sprintf("Help with request %d", i),
			"I have an issue with my account login.", time.Now().UTC()))
	}
	fetcher := &stubFetcher{emails: emails}
	e := newEnv(t, fetcher, &testutil.ScriptedGenerator{
		Default: genai.Generation{Text: "Reply.", QualitySignal: testutil.QualityPtr(0.7)},
	}, pipeline.Options{Workers: 4, HandleTimeout: 5 * time.Second})

	summary, err := e.processor.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Responded != 12 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 12 responded", summary)
	}
	if stats := e.tasks.Stats(); stats.QueueSize != 0 || stats.ProcessingCount != 0 {
		t.Errorf("queue stats = %+v, want drained", stats)
	}
}
