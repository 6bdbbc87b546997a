package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studygraph/studygraph/log"
	"github.com/studygraph/studygraph/rag"
)

// flakyEmbedder fails a configurable number of calls before succeeding.
type flakyEmbedder struct {
	name      string
	dimension int
	failures  int
	calls     int
}

func (f *flakyEmbedder) Name() string { return f.name }

func (f *flakyEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("provider unavailable")
	}
	return make([]float32, f.dimension), nil
}

func (f *flakyEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("provider unavailable")
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, f.dimension)
	}
	return vecs, nil
}

func (f *flakyEmbedder) Dimension() int { return f.dimension }

func TestLocalEmbedder(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	t.Run("deterministic", func(t *testing.T) {
		a, err := e.EmbedQuery(ctx, "progressive overload")
		require.NoError(t, err)
		b, err := e.EmbedQuery(ctx, "progressive overload")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("different texts differ", func(t *testing.T) {
		a, err := e.EmbedQuery(ctx, "squat technique")
		require.NoError(t, err)
		b, err := e.EmbedQuery(ctx, "nutrition basics")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("unit norm", func(t *testing.T) {
		vec, err := e.EmbedQuery(ctx, "deadlift form cues")
		require.NoError(t, err)
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	})

	t.Run("batch matches single", func(t *testing.T) {
		vecs, err := e.EmbedDocuments(ctx, []string{"bench press", "overhead press"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)

		single, err := e.EmbedQuery(ctx, "bench press")
		require.NoError(t, err)
		assert.Equal(t, single, vecs[0])
	})

	t.Run("default dimension", func(t *testing.T) {
		assert.Equal(t, 256, NewLocalEmbedder(0).Dimension())
	})
}

func TestFallbackEmbedder_SkipsUnhealthyProvider(t *testing.T) {
	broken := &flakyEmbedder{name: "broken", dimension: 8, failures: 1000}
	healthy := &flakyEmbedder{name: "healthy", dimension: 8}

	f, err := NewFallbackEmbedder(context.Background(), []rag.Embedder{broken, healthy},
		WithFallbackLogger(log.NewNoOpLogger()))
	require.NoError(t, err)

	assert.Equal(t, 8, f.Dimension())
	require.Len(t, f.providers, 1)

	vec, err := f.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestFallbackEmbedder_AllUnhealthy(t *testing.T) {
	a := &flakyEmbedder{name: "a", dimension: 8, failures: 1000}
	b := &flakyEmbedder{name: "b", dimension: 8, failures: 1000}

	_, err := NewFallbackEmbedder(context.Background(), []rag.Embedder{a, b},
		WithFallbackLogger(log.NewNoOpLogger()))
	assert.ErrorIs(t, err, ErrNoHealthyProvider)
}

func TestFallbackEmbedder_RuntimeFallthrough(t *testing.T) {
	// Both pass the probe (one call each), then the first starts failing
	primary := &flakyEmbedder{name: "primary", dimension: 8}
	secondary := &flakyEmbedder{name: "secondary", dimension: 8}

	f, err := NewFallbackEmbedder(context.Background(), []rag.Embedder{primary, secondary},
		WithFallbackLogger(log.NewNoOpLogger()))
	require.NoError(t, err)
	require.Len(t, f.providers, 2)

	primary.failures = 1000

	vecs, err := f.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestFallbackEmbedder_DimensionMismatchDropped(t *testing.T) {
	first := &flakyEmbedder{name: "first", dimension: 8}
	other := &flakyEmbedder{name: "other", dimension: 16}

	f, err := NewFallbackEmbedder(context.Background(), []rag.Embedder{first, other},
		WithFallbackLogger(log.NewNoOpLogger()))
	require.NoError(t, err)

	assert.Len(t, f.providers, 1)
	assert.Equal(t, 8, f.Dimension())
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("")
	assert.Error(t, err)
}

func TestNewGeminiEmbedder_RequiresKey(t *testing.T) {
	_, err := NewGeminiEmbedder(context.Background(), "")
	assert.Error(t, err)
}
