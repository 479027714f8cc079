// Package orchestrator drives one logical chat turn through the provider:
// the first call with tools attached, the tool round trip, the follow-up
// call for the narrative, and recovery from rate limits and malformed tool
// output.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/talesmith-ai/talesmith/internal/history"
	"github.com/talesmith-ai/talesmith/internal/llm"
	"github.com/talesmith-ai/talesmith/internal/logger"
	"github.com/talesmith-ai/talesmith/internal/models"
	"github.com/talesmith-ai/talesmith/internal/prompt"
	"github.com/talesmith-ai/talesmith/internal/ratelimit"
	"github.com/talesmith-ai/talesmith/internal/toolcall"
)

// CompletionClient is the slice of the provider client the orchestrator
// depends on.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Events receives the side effects of a running turn. Implementations must
// not block; the websocket layer buffers.
type Events interface {
	// Narrative delivers the turn's final narrative text. Emitted exactly
	// once per successful turn, always after any UIUpdate calls.
	Narrative(model, text string)
	// UIUpdate delivers a resolved interface payload, emitted as soon as the
	// tool call parses, before the follow-up provider call is issued.
	UIUpdate(model, callID, code string)
	// Capacity delivers a quota snapshot. Emitted for every provider
	// response that carried quota headers, success or failure.
	Capacity(model string, snap *ratelimit.Snapshot)
	// ModelSwitch announces a rate-limit substitution.
	ModelSwitch(from, to string)
	// RateLimitWait announces the terminal timed wait on the last model.
	RateLimitWait(model string, wait time.Duration)
}

// Config are the per-session orchestration tunables.
type Config struct {
	Temperature        float64
	TopP               float64
	MaxTokens          int
	CorrectiveRetryCap int
	// FallbackWait is the terminal rate-limit wait used when the 429 body
	// carried no parseable retry hint.
	FallbackWait time.Duration
}

// Orchestrator runs chat turns for a single session. At most one turn is in
// flight at a time; concurrent submits are rejected.
type Orchestrator struct {
	client   CompletionClient
	registry *models.Registry
	history  *history.History
	events   Events
	cfg      Config

	mu             sync.Mutex
	inFlight       bool
	turnsCompleted int
}

// New creates an orchestrator for one session.
func New(client CompletionClient, registry *models.Registry, hist *history.History, events Events, cfg Config) *Orchestrator {
	if cfg.CorrectiveRetryCap <= 0 {
		cfg.CorrectiveRetryCap = 2
	}
	if cfg.FallbackWait <= 0 {
		cfg.FallbackWait = ratelimit.FallbackRetryDelay
	}
	return &Orchestrator{
		client:   client,
		registry: registry,
		history:  hist,
		events:   events,
		cfg:      cfg,
	}
}

// Submit runs one chat turn to completion. The user turn is appended to
// history up front and survives any failure; no assistant turn is appended
// unless the turn succeeds. toolsEnabled false skips the tool round trip
// entirely and fetches a plain narrative. Returns nil or a *TurnError.
func (o *Orchestrator) Submit(ctx context.Context, content, requestedModel string, toolsEnabled bool) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	o.inFlight = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	o.history.Append(history.RoleUser, content)

	model := o.registry.Head()
	if requestedModel != "" && o.registry.Contains(requestedModel) {
		model = requestedModel
	}

	if err := o.runTurn(ctx, model, toolsEnabled); err != nil {
		turnErr := classify(err)
		logger.Error("Turn failed (%s): %s", turnErr.Category, turnErr.Message)
		return turnErr
	}

	o.mu.Lock()
	o.turnsCompleted++
	o.mu.Unlock()
	return nil
}

// InFlight reports whether a turn is currently running.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// modelCursor tracks the model currently in use across the calls of one
// turn; a rate-limit substitution during the first call carries over to the
// follow-up.
type modelCursor struct {
	model string
}

func (o *Orchestrator) runTurn(ctx context.Context, model string, toolsEnabled bool) error {
	cur := &modelCursor{model: model}
	corrective := 0

	// Force a tool call on the session's very first turn so the player gets
	// an interface immediately; after that the model decides.
	toolChoice := llm.ToolChoiceAuto
	if o.turnsCompleted == 0 {
		toolChoice = llm.ToolChoiceRequired
	}

	msgs := o.wireMessages()

	for {
		req := &llm.CompletionRequest{
			Messages:    msgs,
			Temperature: o.cfg.Temperature,
			TopP:        o.cfg.TopP,
			MaxTokens:   o.cfg.MaxTokens,
		}
		if toolsEnabled {
			req.Tools = prompt.Tools()
			req.ToolChoice = toolChoice
		}

		resp, err := o.complete(ctx, cur, req)
		if err != nil {
			return err
		}

		if !toolsEnabled || len(resp.ToolCalls) == 0 {
			o.finishTurn(cur.model, resp.Content)
			return nil
		}

		results := resolveAll(resp.ToolCalls)
		if hint, failed := firstFailure(results); failed {
			if corrective >= o.cfg.CorrectiveRetryCap {
				return &TurnError{
					Category:  CategoryMalformedOutput,
					Message:   "model kept producing unparseable tool output",
					Retryable: true,
				}
			}
			corrective++
			logger.Info("Malformed tool output, corrective retry %d/%d", corrective, o.cfg.CorrectiveRetryCap)
			msgs = append(msgs, llm.Message{Role: history.RoleSystem, Content: hint})
			continue
		}

		// The interface updates as soon as the instructions are known; the
		// follow-up call only fetches the narrative.
		toolMsgs := o.applyResults(cur.model, results)

		followMsgs := make([]llm.Message, 0, len(msgs)+1+len(toolMsgs))
		followMsgs = append(followMsgs, msgs...)
		followMsgs = append(followMsgs, llm.Message{
			Role:      history.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		followMsgs = append(followMsgs, toolMsgs...)

		return o.followUp(ctx, cur, followMsgs, &corrective)
	}
}

// followUp issues the tool-result round trip and finishes the turn with its
// narrative. The chain depth is capped here: if this response requests more
// tool calls they are resolved and applied, but no third provider call is
// made for them.
func (o *Orchestrator) followUp(ctx context.Context, cur *modelCursor, msgs []llm.Message, corrective *int) error {
	for {
		resp, err := o.complete(ctx, cur, &llm.CompletionRequest{
			Messages:    msgs,
			Temperature: o.cfg.Temperature,
			TopP:        o.cfg.TopP,
			MaxTokens:   o.cfg.MaxTokens,
		})
		if err != nil {
			return err
		}

		if len(resp.ToolCalls) > 0 {
			results := resolveAll(resp.ToolCalls)
			if hint, failed := firstFailure(results); failed {
				if *corrective >= o.cfg.CorrectiveRetryCap {
					return &TurnError{
						Category:  CategoryMalformedOutput,
						Message:   "model kept producing unparseable tool output",
						Retryable: true,
					}
				}
				*corrective++
				logger.Info("Malformed tool output on follow-up, corrective retry %d/%d", *corrective, o.cfg.CorrectiveRetryCap)
				msgs = append(msgs, llm.Message{Role: history.RoleSystem, Content: hint})
				continue
			}

			logger.Warn("Follow-up response requested %d more tool calls; applying without another round trip", len(resp.ToolCalls))
			o.applyResults(cur.model, results)
		}

		o.finishTurn(cur.model, resp.Content)
		return nil
	}
}

// applyResults emits each resolved instruction to the client and appends the
// matching synthetic tool turns, returning their wire messages.
func (o *Orchestrator) applyResults(model string, results []toolcall.Result) []llm.Message {
	toolMsgs := make([]llm.Message, 0, len(results))
	for _, res := range results {
		switch instr := res.Instruction.(type) {
		case toolcall.UpdateInterface:
			o.events.UIUpdate(model, res.CallID, instr.Code)
		default:
			logger.Warn("Unhandled tool instruction kind %q", res.Instruction.Kind())
		}

		o.history.AppendTool(res.CallID, prompt.ToolResultAck)
		toolMsgs = append(toolMsgs, llm.Message{
			Role:       history.RoleTool,
			Content:    prompt.ToolResultAck,
			ToolCallID: res.CallID,
		})
	}
	return toolMsgs
}

func (o *Orchestrator) finishTurn(model, content string) {
	narrative := history.SanitizeAssistant(content)
	o.history.Append(history.RoleAssistant, narrative)
	o.events.Narrative(model, narrative)
}

// complete issues one provider call with the turn's recovery policy: on 429
// walk the fallback list without delay, then wait out the hint on the last
// model and retry it once; on 5xx retry once after a short backoff.
func (o *Orchestrator) complete(ctx context.Context, cur *modelCursor, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	serverRetried := false
	waitedOut := false
	var waits []time.Duration

	for {
		req.Model = cur.model
		resp, err := o.client.ChatCompletion(ctx, req)
		if resp != nil && resp.RateLimit != nil {
			o.events.Capacity(cur.model, resp.RateLimit)
		} else if snap := llm.ErrorSnapshot(err); snap != nil {
			o.events.Capacity(cur.model, snap)
		}
		if err == nil {
			return resp, nil
		}

		var rateErr *llm.RateLimitError
		if errors.As(err, &rateErr) {
			if rateErr.RetryAfter > 0 {
				waits = append(waits, rateErr.RetryAfter)
			}

			if next, ok := o.registry.NextAfter(cur.model); ok && !waitedOut {
				logger.Info("Rate limited on %s, switching to %s", cur.model, next)
				o.events.ModelSwitch(cur.model, next)
				cur.model = next
				continue
			}

			if waitedOut {
				return nil, exhaustedError(waits)
			}

			wait := rateErr.RetryAfter
			if wait <= 0 {
				wait = o.cfg.FallbackWait
			}
			logger.Info("Fallback list exhausted, waiting %s on %s", wait, cur.model)
			o.events.RateLimitWait(cur.model, wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			waitedOut = true
			continue
		}

		var srvErr *llm.ServerError
		if errors.As(err, &srvErr) && !serverRetried {
			serverRetried = true
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			delay := b.NextBackOff()
			logger.Warn("Provider server error (status %d), retrying once in %s", srvErr.StatusCode, delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, err
	}
}

// wireMessages builds the outbound message list: the fixed system prompt
// followed by the history window, stripped down to wire fields only. Tool
// acks from earlier turns are downgraded to system notes: history does not
// keep the assistant tool_calls message they answered, and providers reject
// a tool turn without its matching assistant turn.
func (o *Orchestrator) wireMessages() []llm.Message {
	turns := o.history.Turns()
	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: history.RoleSystem, Content: prompt.System})
	for _, t := range turns {
		role, toolCallID := t.Role, t.ToolCallID
		if role == history.RoleTool {
			role = history.RoleSystem
			toolCallID = ""
		}
		msgs = append(msgs, llm.Message{
			Role:       role,
			Content:    t.Content,
			ToolCallID: toolCallID,
		})
	}
	return msgs
}

func resolveAll(calls []llm.ToolCall) []toolcall.Result {
	results := make([]toolcall.Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, toolcall.Resolve(call))
	}
	return results
}

// firstFailure returns the corrective hint of the first failed result. One
// failed call fails the whole batch; partially applied interface updates are
// worse than a clean retry.
func firstFailure(results []toolcall.Result) (string, bool) {
	for _, res := range results {
		if !res.OK() {
			return res.Failure.Hint, true
		}
	}
	return "", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
