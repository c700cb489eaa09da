// Package llmgateway is the typed prompt-construction and structured-output
// façade in front of a raw LLM provider: prompt assembly, JSON parsing with
// a repair pass, tool-call validation, and bounded retries. The iteration
// shape is grounded on the teacher's pkg/tools/toolloop.go; the provider
// seam is grounded on pkg/providers/types.go's LLMProvider interface.
package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// Provider is the narrow seam to a concrete LLM backend. The backend itself
// is out of scope; only this call shape is specified.
type Provider interface {
	Chat(ctx context.Context, messages []meshtypes.ChatTurn, tools []meshtypes.ToolSchema,
		toolChoice meshtypes.ToolChoice, responseFormat meshtypes.ResponseFormat, modelArgs map[string]any) (ProviderResult, error)
}

// ProviderResult is the raw response shape a Provider returns before the
// gateway applies JSON parsing/repair and tool-name validation.
type ProviderResult struct {
	Content      string
	ToolCalls    []meshtypes.ToolCall
	FinishReason string // "stop" | "tool_calls" | "length" | "content_filter"
	SendTokens   int
	RecvTokens   int
}

const (
	maxToolRetries  = 20
	toolRetryCap    = 10 * time.Second
	toolRetryBase   = 250 * time.Millisecond
)

// Gateway wraps a Provider with the prompt-assembly and retry contract.
type Gateway struct {
	Provider Provider
}

func New(provider Provider) *Gateway {
	return &Gateway{Provider: provider}
}

// Generate assembles the prompt and calls the provider, retrying on an
// invalid tool name (up to 20 attempts, exponential backoff capped at 10s)
// and on malformed JSON output (one repair pass before re-raising).
// Content-policy refusals are fatal and returned immediately.
func (g *Gateway) Generate(
	ctx context.Context,
	prepend []string,
	history []meshtypes.ChatTurn,
	appendPrompts []string,
	tools []meshtypes.ToolSchema,
	toolChoice meshtypes.ToolChoice,
	responseFormat meshtypes.ResponseFormat,
	modelArgs map[string]any,
) (meshtypes.LLMResult, error) {
	messages := assemblePrompt(prepend, history, appendPrompts)
	toolNames := toolNameSet(tools)

	var lastErr error
	for attempt := 0; attempt < maxToolRetries; attempt++ {
		result, err := g.Provider.Chat(ctx, messages, tools, toolChoice, responseFormat, modelArgs)
		if err != nil {
			return meshtypes.LLMResult{}, fmt.Errorf("llm gateway: provider call: %w", err)
		}
		if result.FinishReason == "content_filter" {
			return meshtypes.LLMResult{}, fmt.Errorf("llm gateway: %w", meshtypes.ErrContentFiltered)
		}

		if invalid := firstInvalidToolCall(result.ToolCalls, toolNames); invalid != "" {
			lastErr = fmt.Errorf("%w: %s", meshtypes.ErrToolCallInvalid, invalid)
			meshlog.WarnCF("llmgateway", "retrying after invalid tool call", map[string]any{
				"tool": invalid, "attempt": attempt,
			})
			if err := backoff(ctx, attempt); err != nil {
				return meshtypes.LLMResult{}, err
			}
			continue
		}

		content, parseErr := decodeContent(result.Content, responseFormat)
		if parseErr != nil {
			repaired, repairErr := repairJSON(result.Content)
			if repairErr != nil {
				return meshtypes.LLMResult{}, fmt.Errorf("llm gateway: %w: %v (repair failed: %v)", meshtypes.ErrSchemaViolation, parseErr, repairErr)
			}
			content = repaired
		}

		return meshtypes.LLMResult{
			Content:    content,
			Role:       "assistant",
			ToolCalls:  result.ToolCalls,
			SendTokens: result.SendTokens,
			RecvTokens: result.RecvTokens,
		}, nil
	}
	return meshtypes.LLMResult{}, fmt.Errorf("llm gateway: exhausted tool-call retries: %w", lastErr)
}

// assemblePrompt builds the provider message list: the first non-empty
// prepend entry becomes the system turn, remaining prepend entries become
// user turns, then history verbatim, then append entries as user turns.
func assemblePrompt(prepend []string, history []meshtypes.ChatTurn, appendPrompts []string) []meshtypes.ChatTurn {
	var out []meshtypes.ChatTurn
	systemSet := false
	for _, p := range prepend {
		if p == "" {
			continue
		}
		if !systemSet {
			out = append(out, meshtypes.ChatTurn{Role: "system", Content: p})
			systemSet = true
			continue
		}
		out = append(out, meshtypes.ChatTurn{Role: "user", Content: p})
	}
	out = append(out, history...)
	for _, a := range appendPrompts {
		if a == "" {
			continue
		}
		out = append(out, meshtypes.ChatTurn{Role: "user", Content: a})
	}
	return out
}

func toolNameSet(tools []meshtypes.ToolSchema) map[string]bool {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t.Name] = true
	}
	return set
}

func firstInvalidToolCall(calls []meshtypes.ToolCall, names map[string]bool) string {
	for _, c := range calls {
		if !names[c.Name] {
			return c.Name
		}
	}
	return ""
}

func decodeContent(raw string, format meshtypes.ResponseFormat) (any, error) {
	if format != meshtypes.ResponseFormatJSONObject {
		return raw, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parsing json_object response: %w", err)
	}
	return v, nil
}

// repairJSON attempts to salvage a near-miss JSON payload using gjson/sjson
// patching: strip anything before the first '{' and after the last '}', then
// re-validate. This handles the common failure mode of an LLM wrapping its
// JSON answer in prose or a markdown code fence.
func repairJSON(raw string) (any, error) {
	start, end := -1, -1
	for i, c := range raw {
		if c == '{' && start == -1 {
			start = i
		}
		if c == '}' {
			end = i
		}
	}
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in output")
	}
	candidate := raw[start : end+1]
	if !gjson.Valid(candidate) {
		return nil, fmt.Errorf("repaired candidate is still invalid JSON")
	}
	// Round trip through sjson/gjson: the candidate is embedded under a
	// wrapper key and read back, so its fields pass through unchanged.
	normalized, err := sjson.SetRaw("{}", "repaired", candidate)
	if err != nil {
		return nil, fmt.Errorf("normalizing repaired JSON: %w", err)
	}
	var v any
	if err := json.Unmarshal([]byte(gjson.Get(normalized, "repaired").Raw), &v); err != nil {
		return nil, fmt.Errorf("decoding repaired JSON: %w", err)
	}
	return v, nil
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(math.Pow(2, float64(attempt))) * toolRetryBase
	if d > toolRetryCap {
		d = toolRetryCap
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
