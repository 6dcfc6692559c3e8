package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/logger"
)

// Encoder turns text into embedding vectors. Implementations must always
// return vectors of exactly Dimensions() floats.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Version() string
}

// GeminiEncoder calls the Google embedding API behind a circuit breaker and
// a tier-scoped rate limiter.
type GeminiEncoder struct {
	client     *genai.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	model      string
	version    string
	dimensions int
}

type rateLimits struct {
	RPM int
	RPD int
}

func tierLimits(tier string) rateLimits {
	switch tier {
	case "free":
		return rateLimits{RPM: 10, RPD: 250}
	case "tier1":
		return rateLimits{RPM: 1000, RPD: 10000}
	case "tier2":
		return rateLimits{RPM: 2000, RPD: 50000}
	default:
		return rateLimits{RPM: 10, RPD: 250}
	}
}

func NewGeminiEncoder(ctx context.Context, cfg *config.Config) (*GeminiEncoder, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	limits := tierLimits(cfg.GeminiTier)
	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst)

	return &GeminiEncoder{
		client:     client,
		breaker:    breaker,
		limiter:    limiter,
		model:      cfg.EmbeddingModel,
		version:    cfg.ModelVersion,
		dimensions: cfg.VectorDimensions,
	}, nil
}

func (g *GeminiEncoder) Dimensions() int { return g.dimensions }
func (g *GeminiEncoder) Model() string   { return g.model }
func (g *GeminiEncoder) Version() string { return g.version }

// Encode embeds texts in one batched API call. Order is preserved.
func (g *GeminiEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("gemini-encoder")
	ctx, span := tracer.Start(ctx, "gemini.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.batch_size", len(texts)),
		attribute.String("gemini.model", g.model),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		em := g.client.EmbeddingModel(g.model)
		batch := em.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedding response size mismatch: want %d", len(texts))
		}
		vectors := make([][]float32, len(resp.Embeddings))
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding at position %d", i)
			}
			vectors[i] = emb.Values
		}
		return vectors, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding call failed: %w", err)
	}
	return result.([][]float32), nil
}

func (g *GeminiEncoder) Close() error { return g.client.Close() }
