package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/rag"
)

// Retriever is the slice of the retrieval surface the responder needs.
// *rag.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, minScore float64) ([]rag.ScoredDocument, error)
}

// Request is one incoming query to answer.
type Request struct {
	Query     string
	Sender    string // raw address header, used to personalize fallbacks
	Sentiment string
	Category  string
	// Timeout bounds the whole handling including retries. Zero means the
	// caller's context deadline applies alone.
	Timeout time.Duration
}

// Options configures a Responder.
type Options struct {
	TopK          int
	MinScore      float64
	ContextBudget int
	Retry         backoff.Policy
	Circuit       CircuitConfig
	// RateLimit caps generation calls per second across all queries.
	// Zero disables rate limiting.
	RateLimit rate.Limit
	RateBurst int
}

// Responder runs the retrieval and generation lifecycle for support queries.
type Responder struct {
	retriever Retriever
	generator genai.Generator
	breaker   *CircuitBreaker
	limiter   *rate.Limiter
	opts      Options
	logger    *slog.Logger
}

// New wires a responder.
func New(retriever Retriever, generator genai.Generator, opts Options, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return &Responder{
		retriever: retriever,
		generator: generator,
		breaker:   NewCircuitBreaker(opts.Circuit),
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
	}
}

// Handle answers one query. It retrieves and assembles grounded context,
// calls the generation backend with bounded retry, and scores the reply.
// With no grounded knowledge and no backend quality signal it returns the
// templated fallback instead of the model's ungrounded guess. A cancelled or
// timed-out context yields StateCancelled with the context error; backend
// failure after retries yields StateFailed with the cause, never a partial
// reply.
func (r *Responder) Handle(ctx context.Context, req Request) (Result, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	state := StatePending
	r.transition(&state, StateRetrieving, req)

	results, err := r.retriever.Retrieve(ctx, req.Query, r.opts.TopK, r.opts.MinScore)
	if err != nil {
		if cancelled(err) {
			return Result{State: StateCancelled}, err
		}
		r.transition(&state, StateFailed, req)
		return Result{State: StateFailed}, fmt.Errorf("retrieval failed: %w", err)
	}
	bundle := rag.Assemble(results, r.opts.ContextBudget)

	r.transition(&state, StateGenerating, req)

	if err := r.breaker.Allow(); err != nil {
		r.transition(&state, StateFailed, req)
		return Result{State: StateFailed}, err
	}

	gen, err := r.generate(ctx, genai.GenerateRequest{
		Query:     req.Query,
		Context:   bundle.Excerpts,
		Sentiment: req.Sentiment,
		Category:  req.Category,
	})
	if err != nil {
		if cancelled(err) {
			return Result{State: StateCancelled}, err
		}
		r.breaker.Failure()
		r.transition(&state, StateFailed, req)
		return Result{State: StateFailed}, fmt.Errorf("generation failed: %w", err)
	}
	r.breaker.Success()

	if bundle.Empty() && gen.QualitySignal == nil {
		r.transition(&state, StateFallback, req)
		return Result{
			State:        StateFallback,
			ReplyText:    FallbackReply(req.Sender),
			Confidence:   0,
			FallbackUsed: true,
		}, nil
	}

	r.transition(&state, StateSucceeded, req)
	return Result{
		State:           StateSucceeded,
		ReplyText:       gen.Text,
		Confidence:      confidence(bundle.TopScore, gen.QualitySignal),
		UsedDocumentIDs: bundle.DocumentIDs,
	}, nil
}

// generate calls the backend with bounded retry, honoring the rate limiter
// before every attempt.
func (r *Responder) generate(ctx context.Context, req genai.GenerateRequest) (genai.Generation, error) {
	var gen genai.Generation
	err := r.opts.Retry.Do(ctx, func(ctx context.Context) error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		g, genErr := r.generator.Generate(ctx, req)
		if genErr != nil {
			if errors.Is(genErr, genai.ErrGenerationUnavailable) {
				return backoff.Retryable(genErr)
			}
			return genErr
		}
		gen = g
		return nil
	})
	return gen, err
}

// confidence combines the top retrieval score with the backend's quality
// signal as a weighted average. Retrieval dominates: a reply grounded on a
// strong match outranks one the backend merely feels good about. Without a
// backend signal the heuristic midpoint 0.5 stands in. Monotonic in both
// inputs; result is always within [0, 1].
func confidence(topScore float64, quality *float64) float64 {
	q := 0.5
	if quality != nil {
		q = clamp01(*quality)
	}
	return 0.6*clamp01(topScore) + 0.4*q
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Responder) transition(state *State, next State, req Request) {
	r.logger.Debug("response state transition",
		"from", state.String(), "to", next.String(), "category", req.Category)
	*state = next
}
