package models

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talesmith-ai/talesmith/internal/llm"
)

type fakeLister struct {
	listing []llm.ModelInfo
	err     error
}

func (f *fakeLister) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return f.listing, f.err
}

func TestRefreshExcludesGuardModels(t *testing.T) {
	lister := &fakeLister{listing: []llm.ModelInfo{
		{ID: "llama-3.3-70b-versatile", MaxCompletionTokens: 32768},
		{ID: "llama-guard-3-8b", MaxCompletionTokens: 8192},
		{ID: "llama-3.1-8b-instant", MaxCompletionTokens: 8192},
	}}

	r := NewRegistry(lister, Options{DefaultModels: []string{"llama-3.1-8b-instant"}})
	r.Refresh(context.Background())

	assert.Equal(t, []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, r.FallbackList())
}

func TestRefreshFiltering(t *testing.T) {
	lister := &fakeLister{listing: []llm.ModelInfo{
		{ID: "llama-3.3-70b-versatile", MaxCompletionTokens: 32768},
		{ID: "whisper-large-v3", MaxCompletionTokens: 8192},        // not a chat family
		{ID: "llama-3.2-1b-preview", MaxCompletionTokens: 2048},    // below token floor
		{ID: "mixtral-8x7b-32768", MaxCompletionTokens: 0},         // no capacity reported
		{ID: "llama-3.1-8b-instant", MaxCompletionTokens: 8192},
	}}

	r := NewRegistry(lister, Options{
		MinCompletionTokens: 4096,
		DefaultModels:       []string{"llama-3.1-8b-instant"},
	})
	r.Refresh(context.Background())

	list := r.FallbackList()
	assert.NotContains(t, list, "whisper-large-v3")
	assert.NotContains(t, list, "llama-3.2-1b-preview")
	assert.NotContains(t, list, "mixtral-8x7b-32768")
	assert.Contains(t, list, "llama-3.3-70b-versatile")

	// The eligible set behind the list is ranked by size, largest first.
	descs := r.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "llama-3.3-70b-versatile", descs[0].ID)
	assert.Equal(t, 70.0, descs[0].ParamsBillions)
	assert.True(t, descs[0].Large())
	assert.Equal(t, "llama-3.1-8b-instant", descs[1].ID)
	assert.False(t, descs[1].Large())
}

func TestCuratedFallbackOrdering(t *testing.T) {
	lister := &fakeLister{listing: []llm.ModelInfo{
		{ID: "llama-3.1-8b-instant", MaxCompletionTokens: 8192},
		{ID: "qwen-qwq-32b", MaxCompletionTokens: 16384},
		{ID: "gemma2-9b-it", MaxCompletionTokens: 8192},
		{ID: "llama-3.3-70b-versatile", MaxCompletionTokens: 32768},
	}}

	r := NewRegistry(lister, Options{DefaultModels: []string{"llama-3.1-8b-instant"}})
	r.Refresh(context.Background())

	// Best large first, best small second, then remaining smalls, then the
	// second-best large.
	assert.Equal(t, []string{
		"llama-3.3-70b-versatile",
		"gemma2-9b-it",
		"llama-3.1-8b-instant",
		"qwen-qwq-32b",
	}, r.FallbackList())
}

func TestRefreshFailsSoft(t *testing.T) {
	defaults := []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}
	r := NewRegistry(&fakeLister{err: errors.New("listing unavailable")}, Options{DefaultModels: defaults})

	r.Refresh(context.Background())

	assert.Equal(t, defaults, r.FallbackList())
}

func TestRefreshKeepsListWhenNothingEligible(t *testing.T) {
	r := NewRegistry(&fakeLister{listing: []llm.ModelInfo{
		{ID: "whisper-large-v3", MaxCompletionTokens: 8192},
	}}, Options{DefaultModels: []string{"llama-3.1-8b-instant"}})

	r.Refresh(context.Background())

	assert.Equal(t, []string{"llama-3.1-8b-instant"}, r.FallbackList())
}

func TestFallbackListHasNoDuplicates(t *testing.T) {
	lister := &fakeLister{listing: []llm.ModelInfo{
		{ID: "llama-3.3-70b-versatile", MaxCompletionTokens: 32768},
		{ID: "llama-3.1-8b-instant", MaxCompletionTokens: 8192},
	}}
	r := NewRegistry(lister, Options{DefaultModels: []string{"llama-3.1-8b-instant"}})
	r.Refresh(context.Background())

	seen := map[string]bool{}
	for _, id := range r.FallbackList() {
		require.False(t, seen[id], "duplicate model %s", id)
		seen[id] = true
	}
	require.NotEmpty(t, r.FallbackList())
}

func TestNextAfter(t *testing.T) {
	r := NewRegistry(nil, Options{DefaultModels: []string{"model-a", "model-b", "model-c"}})

	next, ok := r.NextAfter("model-a")
	require.True(t, ok)
	assert.Equal(t, "model-b", next)

	next, ok = r.NextAfter("model-b")
	require.True(t, ok)
	assert.Equal(t, "model-c", next)

	_, ok = r.NextAfter("model-c")
	assert.False(t, ok)

	_, ok = r.NextAfter("unknown")
	assert.False(t, ok)
}

func TestParseParamCount(t *testing.T) {
	assert.Equal(t, 70.0, parseParamCount("llama-3.3-70b-versatile"))
	assert.Equal(t, 8.0, parseParamCount("llama-3.1-8b-instant"))
	assert.Equal(t, 9.0, parseParamCount("gemma2-9b-it"))
	assert.Equal(t, 0.0, parseParamCount("mixtral-large"))
}
