package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/rag"
)

// ErrNoHealthyProvider is returned when every provider in a fallback chain
// fails its construction-time health probe.
var ErrNoHealthyProvider = errors.New("no healthy embedding provider")

const healthProbeTimeout = 10 * time.Second

// FallbackEmbedder tries an ordered list of providers. Each provider is
// health-probed once at construction; providers that fail the probe, or whose
// dimension differs from the first healthy provider, are dropped. At call
// time the first provider to succeed wins.
type FallbackEmbedder struct {
	providers []rag.Embedder
	dimension int
	logger    log.Logger
}

// FallbackOption configures the FallbackEmbedder.
type FallbackOption func(*FallbackEmbedder)

// WithFallbackLogger sets the logger.
func WithFallbackLogger(logger log.Logger) FallbackOption {
	return func(f *FallbackEmbedder) {
		f.logger = logger
	}
}

// NewFallbackEmbedder builds a chain from the given providers, in priority
// order. Construction fails when no provider passes its health probe.
func NewFallbackEmbedder(ctx context.Context, providers []rag.Embedder, opts ...FallbackOption) (*FallbackEmbedder, error) {
	f := &FallbackEmbedder{
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := providerName(provider)

		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		_, err := provider.EmbedQuery(probeCtx, "health check")
		cancel()
		if err != nil {
			f.logger.Warn("embedding provider %s failed health probe, skipping: %v", name, err)
			continue
		}

		if f.dimension == 0 {
			f.dimension = provider.Dimension()
		} else if provider.Dimension() != f.dimension {
			f.logger.Warn("embedding provider %s has dimension %d, chain uses %d, skipping",
				name, provider.Dimension(), f.dimension)
			continue
		}

		f.providers = append(f.providers, provider)
		f.logger.Info("embedding provider %s is healthy (dimension %d)", name, provider.Dimension())
	}

	if len(f.providers) == 0 {
		return nil, ErrNoHealthyProvider
	}
	return f, nil
}

// Name identifies the chain's active providers in logs.
func (f *FallbackEmbedder) Name() string {
	return fmt.Sprintf("fallback(%d providers)", len(f.providers))
}

// EmbedQuery embeds a single query string with the first provider that
// succeeds.
func (f *FallbackEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for _, provider := range f.providers {
		vec, err := provider.EmbedQuery(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		f.logger.Warn("embedding provider %s failed, trying next: %v", providerName(provider), err)
	}
	return nil, fmt.Errorf("all embedding providers failed: %w", lastErr)
}

// EmbedDocuments embeds a batch with the first provider that succeeds. A
// provider either embeds the whole batch or the chain moves on; there is no
// per-item substitution.
func (f *FallbackEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for _, provider := range f.providers {
		vecs, err := provider.EmbedDocuments(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		f.logger.Warn("embedding provider %s failed, trying next: %v", providerName(provider), err)
	}
	return nil, fmt.Errorf("all embedding providers failed: %w", lastErr)
}

// Dimension returns the chain's vector dimension.
func (f *FallbackEmbedder) Dimension() int {
	return f.dimension
}

func providerName(e rag.Embedder) string {
	if n, ok := e.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", e)
}

var _ rag.Embedder = (*FallbackEmbedder)(nil)
