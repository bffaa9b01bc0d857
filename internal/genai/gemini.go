package genai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	googleai "google.golang.org/genai"

	"github.com/replymate/replymate/internal/config"
)

// Gemini implements Embedder and Generator on top of Genkit with the
// Google AI plugin. Requires GEMINI_API_KEY in the environment.
type Gemini struct {
	g        *genkit.Genkit
	embedder ai.Embedder
	model    ai.ModelRef
	logger   *slog.Logger
}

var (
	_ Embedder  = (*Gemini)(nil)
	_ Generator = (*Gemini)(nil)
)

// NewGemini initializes Genkit with the Google AI plugin and resolves
// the configured embedder and generation models.
func NewGemini(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	model := googlegenai.GoogleAIModelRef(cfg.ModelName, &googleai.GenerateContentConfig{
		Temperature:     googleai.Ptr(cfg.Temperature),
		MaxOutputTokens: int32(cfg.MaxTokens), // #nosec G115 -- validated range in config
	})

	return &Gemini{
		g:        g,
		embedder: embedder,
		model:    model,
		logger:   logger,
	}, nil
}

// Embed returns the embedding vector for text. Transport failures wrap
// ErrEmbeddingUnavailable.
func (c *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrEmbeddingUnavailable)
	}
	return resp.Embeddings[0].Embedding, nil
}

// Generate sends the rendered prompt to the model. Gemini reports no
// usable quality signal, so QualitySignal is always nil and the caller's
// heuristic midpoint applies.
func (c *Gemini) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModel(c.model),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(BuildPrompt(req)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Generation{}, ctx.Err()
		}
		return Generation{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	text := resp.Text()
	if text == "" {
		return Generation{}, fmt.Errorf("%w: empty response", ErrGenerationUnavailable)
	}

	c.logger.Debug("generation completed", "chars", len(text))
	return Generation{Text: text}, nil
}
