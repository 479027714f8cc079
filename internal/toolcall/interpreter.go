// Package toolcall validates the provider's function-call payloads and turns
// them into concrete UI instructions, repairing the common ways models break
// JSON on the way.
package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talesmith-ai/talesmith/internal/llm"
	"github.com/talesmith-ai/talesmith/internal/logger"
)

// UpdateInterfaceTool is the function name the model calls to replace the
// game's interactive surface.
const UpdateInterfaceTool = "update_interface"

// Instruction is a decoded tool operation. New tool types plug in here
// without touching the parse/repair pipeline.
type Instruction interface {
	Kind() string
}

// UpdateInterface replaces the interactive UI with the given code payload.
// The payload's semantics are the renderer's problem; this package only
// guarantees it decoded from valid JSON.
type UpdateInterface struct {
	Code string
}

// Kind implements Instruction.
func (UpdateInterface) Kind() string { return UpdateInterfaceTool }

// Failure describes an unresolvable tool call. Hint is the corrective text
// the orchestrator feeds back to the model as a synthetic system turn.
type Failure struct {
	Message string
	Hint    string
}

// Result is the resolution of one tool call. Exactly one of Instruction or
// Failure is set.
type Result struct {
	CallID      string
	Instruction Instruction
	Failure     *Failure
}

// OK reports whether the call resolved to an instruction.
func (r Result) OK() bool { return r.Failure == nil }

// Resolve validates and decodes one tool call. Parsing is attempted strictly
// first; on failure the argument string goes through one bounded repair pass
// and is parsed exactly once more.
func Resolve(call llm.ToolCall) Result {
	name := strings.TrimSpace(call.Function.Name)
	switch name {
	case UpdateInterfaceTool:
		return resolveUpdateInterface(call)
	default:
		return Result{
			CallID: call.ID,
			Failure: &Failure{
				Message: fmt.Sprintf("unknown tool %q", name),
				Hint:    fmt.Sprintf("You called an unknown tool %q. Only the %s tool is available.", name, UpdateInterfaceTool),
			},
		}
	}
}

type updateInterfaceArgs struct {
	Code string `json:"code"`
}

func resolveUpdateInterface(call llm.ToolCall) Result {
	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		logger.Warn("Tool call %s arguments unparseable after repair: %v", call.ID, err)
		return Result{
			CallID: call.ID,
			Failure: &Failure{
				Message: fmt.Sprintf("tool arguments are not valid JSON: %v", err),
				Hint: "Your last interface update was not valid JSON and could not be applied. " +
					"Call " + UpdateInterfaceTool + " again with simpler output: a single JSON object " +
					"with one \"code\" string field, no raw newlines inside the string.",
			},
		}
	}

	if strings.TrimSpace(args.Code) == "" {
		return Result{
			CallID: call.ID,
			Failure: &Failure{
				Message: "tool arguments carry an empty code payload",
				Hint:    "Your interface update had an empty \"code\" field. Call " + UpdateInterfaceTool + " again with the full interface code.",
			},
		}
	}

	return Result{
		CallID:      call.ID,
		Instruction: UpdateInterface{Code: args.Code},
	}
}

func parseArguments(raw string) (*updateInterfaceArgs, error) {
	var args updateInterfaceArgs

	strictErr := decodeStrict(raw, &args)
	if strictErr == nil {
		return &args, nil
	}

	repaired := Repair(raw)
	if repaired == raw {
		return nil, strictErr
	}

	if err := decodeStrict(repaired, &args); err != nil {
		return nil, fmt.Errorf("repair did not help: %w", strictErr)
	}

	logger.Debug("Tool call arguments recovered by repair pass")
	return &args, nil
}

func decodeStrict(raw string, into *updateInterfaceArgs) error {
	return json.Unmarshal([]byte(raw), into)
}
