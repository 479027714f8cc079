// Package ratelimit interprets provider rate-limit metadata: the
// x-ratelimit-* response headers present on every Groq response, and the
// human-readable retry hint embedded in 429 error bodies.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// warningThreshold flags capacity as low when remaining/limit drops strictly
// below this ratio on either the request or token axis.
const warningThreshold = 0.20

// Snapshot is a normalized view of the provider's remaining quota, derived
// from one response. Only the latest snapshot is ever meaningful.
type Snapshot struct {
	LimitRequests     int           `json:"limit_requests"`
	RemainingRequests int           `json:"remaining_requests"`
	LimitTokens       int           `json:"limit_tokens"`
	RemainingTokens   int           `json:"remaining_tokens"`
	ResetRequests     time.Duration `json:"reset_requests"`
	ResetTokens       time.Duration `json:"reset_tokens"`
}

// FromHeaders builds a Snapshot from provider response headers. It returns
// false when no quota headers are present; older or alternate providers omit
// them and that is not an error.
func FromHeaders(h http.Header) (*Snapshot, bool) {
	if h == nil {
		return nil, false
	}

	limitReq, okLR := headerInt(h, "x-ratelimit-limit-requests")
	remReq, okRR := headerInt(h, "x-ratelimit-remaining-requests")
	limitTok, okLT := headerInt(h, "x-ratelimit-limit-tokens")
	remTok, okRT := headerInt(h, "x-ratelimit-remaining-tokens")

	if !okLR && !okRR && !okLT && !okRT {
		return nil, false
	}

	return &Snapshot{
		LimitRequests:     limitReq,
		RemainingRequests: remReq,
		LimitTokens:       limitTok,
		RemainingTokens:   remTok,
		ResetRequests:     parseResetDuration(h.Get("x-ratelimit-reset-requests")),
		ResetTokens:       parseResetDuration(h.Get("x-ratelimit-reset-tokens")),
	}, true
}

// RequestRatio returns remaining/limit for requests, or 1 when the limit is
// unknown.
func (s *Snapshot) RequestRatio() float64 {
	return ratio(s.RemainingRequests, s.LimitRequests)
}

// TokenRatio returns remaining/limit for tokens, or 1 when the limit is
// unknown.
func (s *Snapshot) TokenRatio() float64 {
	return ratio(s.RemainingTokens, s.LimitTokens)
}

// Warning reports whether either capacity axis has dropped strictly below the
// warning threshold. A ratio of exactly 20% is not a warning.
func (s *Snapshot) Warning() bool {
	return s.RequestRatio() < warningThreshold || s.TokenRatio() < warningThreshold
}

func ratio(remaining, limit int) float64 {
	if limit <= 0 {
		return 1
	}
	return float64(remaining) / float64(limit)
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseResetDuration handles the "2m59.56s" / "7.66s" forms the provider uses
// for reset headers. Unparseable values degrade to zero.
func parseResetDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if d, ok := parseRetryText(raw); ok {
		return d
	}
	return 0
}
