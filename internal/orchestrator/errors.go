package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talesmith-ai/talesmith/internal/llm"
)

// Failure categories surfaced to the transport boundary. Recoverable
// conditions (rate limits with fallback room, repairable tool output) are
// handled inside the orchestrator and never appear here.
const (
	CategoryTransport       = "transport"
	CategoryAuth            = "auth"
	CategoryRateLimit       = "rate_limit"
	CategoryMalformedOutput = "malformed_tool_output"
	CategoryServer          = "provider_server"
	CategoryBusy            = "busy"
	CategoryCanceled        = "canceled"
)

// TurnError is the structured failure payload for one chat turn.
type TurnError struct {
	Category  string
	Message   string
	Retryable bool
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// ErrTurnInFlight is returned when a submit arrives while the session's
// previous turn is still running.
var ErrTurnInFlight = &TurnError{
	Category:  CategoryBusy,
	Message:   "a turn is already in progress for this session",
	Retryable: true,
}

// classify converts any error escaping a turn into a TurnError.
func classify(err error) *TurnError {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr
	}

	var authErr *llm.AuthError
	if errors.As(err, &authErr) {
		return &TurnError{Category: CategoryAuth, Message: authErr.Message, Retryable: false}
	}

	var srvErr *llm.ServerError
	if errors.As(err, &srvErr) {
		return &TurnError{Category: CategoryServer, Message: srvErr.Message, Retryable: true}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &TurnError{Category: CategoryCanceled, Message: err.Error(), Retryable: true}
	}

	return &TurnError{Category: CategoryTransport, Message: err.Error(), Retryable: true}
}

// exhaustedError aggregates a full 429 cascade into one terminal failure,
// keeping the spread of retry hints seen along the way.
func exhaustedError(waits []time.Duration) *TurnError {
	msg := "all fallback models are rate limited"
	if len(waits) > 0 {
		minWait, maxWait := waits[0], waits[0]
		for _, w := range waits[1:] {
			if w < minWait {
				minWait = w
			}
			if w > maxWait {
				maxWait = w
			}
		}
		if minWait == maxWait {
			msg = fmt.Sprintf("%s; provider suggested retrying in %s", msg, maxWait)
		} else {
			msg = fmt.Sprintf("%s; provider retry hints ranged from %s to %s", msg, minWait, maxWait)
		}
	}
	return &TurnError{Category: CategoryRateLimit, Message: msg, Retryable: true}
}
