// Package models discovers the provider's live model set and ranks it into
// the ordered fallback list used for rate-limit substitution.
package models

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/talesmith-ai/talesmith/internal/llm"
	"github.com/talesmith-ai/talesmith/internal/logger"
)

// largeParamThreshold splits models into the "large" and "small/fast" size
// classes used by the fallback ordering heuristic, in billions of parameters.
const largeParamThreshold = 24.0

// chatFamilyPattern matches the chat-capable model families we know how to
// drive. Whisper/TTS/embedding ids fall through and are ignored.
var chatFamilyPattern = regexp.MustCompile(`(?i)^(llama|gemma|qwen|qwq|mixtral|mistral|deepseek|kimi|moonshotai|meta-llama)`)

// guardPattern matches moderation/safety variants that can answer neither
// narration nor tool calls.
var guardPattern = regexp.MustCompile(`(?i)(guard|moderation|safeguard)`)

var paramCountPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)b`)

// Descriptor is an immutable snapshot of one eligible model.
type Descriptor struct {
	ID                  string
	ParamsBillions      float64
	MaxCompletionTokens int
}

// Large reports whether the model falls in the large size class.
func (d Descriptor) Large() bool {
	return d.ParamsBillions >= largeParamThreshold
}

// Lister is the slice of the provider client the registry needs.
type Lister interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

// Options configures a Registry.
type Options struct {
	// MinCompletionTokens excludes models whose maximum output capacity is
	// below this threshold.
	MinCompletionTokens int
	// DefaultModels is the static fallback list of last resort, used until
	// the first successful refresh and whenever a refresh yields nothing.
	// Its last entry is the guaranteed fallback model.
	DefaultModels []string
}

// Registry holds the current fallback list. The list is replaced atomically
// by Refresh and read-only everywhere else, so it is safe to share across
// sessions.
type Registry struct {
	lister    Lister
	minTokens int
	defaults  []string

	mu          sync.RWMutex
	fallback    []string
	descriptors []Descriptor
}

// NewRegistry creates a registry seeded with the static default list. lister
// may be nil, in which case Refresh is a no-op and the defaults stand.
func NewRegistry(lister Lister, opts Options) *Registry {
	defaults := opts.DefaultModels
	if len(defaults) == 0 {
		defaults = []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}
	}

	minTokens := opts.MinCompletionTokens
	if minTokens <= 0 {
		minTokens = 4096
	}

	return &Registry{
		lister:    lister,
		minTokens: minTokens,
		defaults:  append([]string(nil), defaults...),
		fallback:  append([]string(nil), defaults...),
	}
}

// Refresh queries the provider's model listing and rebuilds the fallback
// list. It fails soft: on any error the previous list is kept and the error
// is only logged, never returned to callers mid-session.
func (r *Registry) Refresh(ctx context.Context) {
	if r.lister == nil {
		return
	}

	listing, err := r.lister.ListModels(ctx)
	if err != nil {
		logger.Warn("Model listing failed, keeping fallback list of %d models: %v", len(r.FallbackList()), err)
		return
	}

	eligible := r.filter(listing)
	fallback := buildFallback(eligible, r.defaultModel())
	if len(fallback) == 0 {
		logger.Warn("Model listing produced no eligible models, keeping previous fallback list")
		return
	}

	r.mu.Lock()
	r.fallback = fallback
	r.descriptors = eligible
	r.mu.Unlock()

	logger.Info("Fallback list refreshed: %s", strings.Join(fallback, ", "))
}

// FallbackList returns a copy of the current ordered fallback list. The list
// is never empty.
func (r *Registry) FallbackList() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.fallback...)
}

// Descriptors returns the eligible models behind the current list.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Descriptor(nil), r.descriptors...)
}

// Contains reports whether id is in the current fallback list.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.fallback {
		if m == id {
			return true
		}
	}
	return false
}

// Head returns the most preferred model.
func (r *Registry) Head() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback[0]
}

// NextAfter returns the model following id in the fallback order, or false
// when id is last (or unknown). Walking forward only guarantees a 429 cascade
// never revisits a model.
func (r *Registry) NextAfter(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, m := range r.fallback {
		if m == id && i+1 < len(r.fallback) {
			return r.fallback[i+1], true
		}
	}
	return "", false
}

func (r *Registry) defaultModel() string {
	return r.defaults[len(r.defaults)-1]
}

func (r *Registry) filter(listing []llm.ModelInfo) []Descriptor {
	eligible := make([]Descriptor, 0, len(listing))
	for _, m := range listing {
		id := strings.TrimSpace(m.ID)
		if id == "" || !chatFamilyPattern.MatchString(id) {
			continue
		}
		if guardPattern.MatchString(id) {
			continue
		}
		if m.MaxCompletionTokens < r.minTokens {
			continue
		}
		eligible = append(eligible, Descriptor{
			ID:                  id,
			ParamsBillions:      parseParamCount(id),
			MaxCompletionTokens: m.MaxCompletionTokens,
		})
	}

	// Rank by parameter count descending; ties keep listing order stable.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].ParamsBillions > eligible[j].ParamsBillions
	})

	return eligible
}

// buildFallback assembles the curated fallback order: the best large model
// first for quality, the best small model second for capacity, then up to two
// more small models and one more large. Large-model rate limits are scarcer
// than small-model ones, so the tail is weighted toward small models.
func buildFallback(eligible []Descriptor, defaultModel string) []string {
	var larges, smalls []string
	for _, d := range eligible {
		if d.Large() {
			larges = append(larges, d.ID)
		} else {
			smalls = append(smalls, d.ID)
		}
	}

	var order []string
	if len(larges) > 0 {
		order = append(order, larges[0])
	}
	if len(smalls) > 0 {
		order = append(order, smalls[0])
	}
	for i := 1; i < len(smalls) && i <= 2; i++ {
		order = append(order, smalls[i])
	}
	if len(larges) > 1 {
		order = append(order, larges[1])
	}

	order = dedupe(order)
	if !containsString(order, defaultModel) {
		order = append(order, defaultModel)
	}
	return order
}

// parseParamCount extracts the parameter count in billions from ids like
// "llama-3.3-70b-versatile". The version segment ("3.3") also ends in a digit
// but never ends with "b", so the pattern only matches size segments.
func parseParamCount(id string) float64 {
	matches := paramCountPattern.FindAllStringSubmatch(id, -1)
	if len(matches) == 0 {
		return 0
	}
	// Use the last size-looking segment; ids like "llama-3.1-8b" parse to 8.
	raw := matches[len(matches)-1][1]
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return n
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func containsString(ids []string, id string) bool {
	for _, m := range ids {
		if m == id {
			return true
		}
	}
	return false
}
