// Package pipeline runs the end-to-end email flow: fetch, triage, queue,
// respond, persist. Each dequeued email is answered by one worker; the queue
// and stores are the only state shared between workers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/replymate/replymate/internal/mailstore"
	"github.com/replymate/replymate/internal/queue"
	"github.com/replymate/replymate/internal/respond"
	"github.com/replymate/replymate/internal/triage"
)

// Fetcher delivers newly arrived emails. Implementations wrap a mailbox
// transport; tests use fixed batches.
type Fetcher interface {
	Fetch(ctx context.Context) ([]mailstore.Email, error)
}

// Handler answers one support query. *respond.Responder satisfies it.
type Handler interface {
	Handle(ctx context.Context, req respond.Request) (respond.Result, error)
}

// Options configures a Processor.
type Options struct {
	// Workers is the number of concurrent responders draining the queue.
	Workers int
	// HandleTimeout bounds one email's retrieval and generation.
	HandleTimeout time.Duration
}

// Summary reports what one processing run did.
type Summary struct {
	Fetched   int
	Saved     int
	Duplicate int
	Ignored   int
	Responded int
	Fallbacks int
	Failed    int
}

// Processor wires the stages of the email flow together.
type Processor struct {
	fetcher  Fetcher
	mails    *mailstore.Store
	analyzer *triage.Analyzer
	tasks    *queue.Queue
	handler  Handler
	opts     Options
	logger   *slog.Logger
}

// New creates a processor. Zero option values get defaults of one worker and
// a 60 second handle timeout.
func New(fetcher Fetcher, mails *mailstore.Store, analyzer *triage.Analyzer,
	tasks *queue.Queue, handler Handler, opts Options, logger *slog.Logger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		fetcher:  fetcher,
		mails:    mails,
		analyzer: analyzer,
		tasks:    tasks,
		handler:  handler,
		opts:     opts,
		logger:   logger,
	}
}

// RunOnce fetches new mail, triages and enqueues it, then drains the queue.
// It returns once every fetched email has reached a terminal status.
func (p *Processor) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary

	emails, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetching mail: %w", err)
	}
	summary.Fetched = len(emails)

	for _, email := range emails {
		if err := p.intake(ctx, email, &summary); err != nil {
			return summary, err
		}
	}

	p.drain(ctx, &summary)
	return summary, nil
}

// intake persists one fetched email, triages it, and enqueues it when it is
// support-related.
func (p *Processor) intake(ctx context.Context, email mailstore.Email, summary *Summary) error {
	saved, created, err := p.mails.SaveEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("saving email %q: %w", email.MessageID, err)
	}
	if !created {
		summary.Duplicate++
		return nil
	}
	summary.Saved++

	analysis := p.analyzer.Analyze(saved.Subject, saved.Body)
	if !analysis.IsSupport {
		summary.Ignored++
		if err := p.mails.UpdateEmailStatus(ctx, saved.ID, mailstore.EmailStatusIgnored); err != nil {
			return err
		}
		p.logger.Debug("ignored non-support email", "id", saved.ID, "subject", saved.Subject)
		return nil
	}

	err = p.mails.UpdateEmailTriage(ctx, saved.ID,
		string(analysis.Sentiment), analysis.Category, string(analysis.Priority))
	if err != nil {
		return err
	}
	if err := p.mails.UpdateEmailStatus(ctx, saved.ID, mailstore.EmailStatusQueued); err != nil {
		return err
	}

	p.tasks.Add(saved.ID, saved.MessageID, queuePriority(analysis.Priority), saved.ReceivedAt)
	return nil
}

// drain answers queued emails with a bounded worker pool until the queue is
// empty or the context ends.
func (p *Processor) drain(ctx context.Context, summary *Summary) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				task := p.tasks.Next()
				if task == nil {
					return
				}
				outcome := p.respondTo(ctx, task)
				mu.Lock()
				switch outcome {
				case outcomeResponded:
					summary.Responded++
				case outcomeFallback:
					summary.Responded++
					summary.Fallbacks++
				case outcomeFailed:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

type outcome int

const (
	outcomeRequeued outcome = iota
	outcomeResponded
	outcomeFallback
	outcomeFailed
)

// respondTo answers one dequeued email and persists the result.
func (p *Processor) respondTo(ctx context.Context, task *queue.Task) outcome {
	email, err := p.mails.GetEmail(ctx, task.EmailID)
	if err != nil {
		p.logger.Error("dequeued email not loadable", "email_id", task.EmailID, "error", err)
		return p.fail(ctx, task, err)
	}

	result, err := p.handler.Handle(ctx, respond.Request{
		Query:     email.Subject + "\n\n" + email.Body,
		Sender:    email.Sender,
		Sentiment: email.Sentiment,
		Category:  email.Category,
		Timeout:   p.opts.HandleTimeout,
	})
	if err != nil {
		p.logger.Warn("response generation failed",
			"email_id", email.ID, "state", result.State.String(), "error", err)
		return p.fail(ctx, task, err)
	}

	_, err = p.mails.SaveResponse(ctx, mailstore.Response{
		EmailID:         email.ID,
		ReplyText:       result.ReplyText,
		Confidence:      result.Confidence,
		FallbackUsed:    result.FallbackUsed,
		UsedDocumentIDs: result.UsedDocumentIDs,
	})
	if err != nil {
		p.logger.Error("persisting response failed", "email_id", email.ID, "error", err)
		return p.fail(ctx, task, err)
	}
	if err := p.mails.UpdateEmailStatus(ctx, email.ID, mailstore.EmailStatusResponded); err != nil {
		p.logger.Error("updating email status failed", "email_id", email.ID, "error", err)
	}
	if err := p.tasks.Complete(task.EmailID); err != nil {
		p.logger.Error("completing task failed", "email_id", email.ID, "error", err)
	}

	if result.FallbackUsed {
		return outcomeFallback
	}
	return outcomeResponded
}

// fail records a failed attempt; the task is either requeued within its
// retry budget or marked permanently failed.
func (p *Processor) fail(ctx context.Context, task *queue.Task, cause error) outcome {
	requeued, err := p.tasks.Fail(task.EmailID, cause)
	if err != nil {
		p.logger.Error("recording task failure failed", "email_id", task.EmailID, "error", err)
		return outcomeFailed
	}
	if requeued {
		return outcomeRequeued
	}
	if err := p.mails.UpdateEmailStatus(ctx, task.EmailID, mailstore.EmailStatusFailed); err != nil {
		p.logger.Error("updating email status failed", "email_id", task.EmailID, "error", err)
	}
	return outcomeFailed
}

func queuePriority(p triage.Priority) queue.Priority {
	if p == triage.PriorityUrgent {
		return queue.PriorityUrgent
	}
	return queue.PriorityNormal
}
