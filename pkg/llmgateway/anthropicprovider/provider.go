// Package anthropicprovider adapts anthropic-sdk-go to the llmgateway
// Provider seam, grounded on the teacher's pkg/providers/anthropic/provider.go
// (message/tool translation, stop-reason mapping).
package anthropicprovider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentmesh/mesh/pkg/llmgateway"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

type Provider struct {
	client *anthropic.Client
	model  string
}

func New(apiKey, baseURL, model string) *Provider {
	var opts []option.RequestOption
	opts = append(opts, option.WithAuthToken(apiKey))
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	if model == "" {
		model = "claude-sonnet-4.6"
	}
	return &Provider{client: &client, model: model}
}

func (p *Provider) Chat(
	ctx context.Context,
	messages []meshtypes.ChatTurn,
	tools []meshtypes.ToolSchema,
	toolChoice meshtypes.ToolChoice,
	responseFormat meshtypes.ResponseFormat,
	modelArgs map[string]any,
) (llmgateway.ProviderResult, error) {
	var system []anthropic.TextBlockParam
	var anthropicMessages []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(4096)
	if mt, ok := modelArgs["max_tokens"].(int); ok {
		maxTokens = int64(mt)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  anthropicMessages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if temp, ok := modelArgs["temperature"].(float64); ok {
		params.Temperature = anthropic.Float(temp)
	}
	if len(tools) > 0 {
		params.Tools = translateTools(tools)
		params.ToolChoice = translateToolChoice(toolChoice)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return llmgateway.ProviderResult{}, fmt.Errorf("claude API call: %w", err)
	}

	return parseResponse(resp), nil
}

func translateTools(tools []meshtypes.ToolSchema) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
			},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		if req, ok := t.Parameters["required"].([]any); ok {
			required := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			tool.InputSchema.Required = required
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return result
}

func translateToolChoice(choice meshtypes.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "name":
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func parseResponse(resp *anthropic.Message) llmgateway.ProviderResult {
	var content string
	var toolCalls []meshtypes.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(tu.Input, &args); err != nil {
				args = map[string]any{"raw": string(tu.Input)}
			}
			toolCalls = append(toolCalls, meshtypes.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}

	finishReason := "stop"
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		finishReason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		finishReason = "length"
	case anthropic.StopReasonEndTurn:
		finishReason = "stop"
	}

	return llmgateway.ProviderResult{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		SendTokens:   int(resp.Usage.InputTokens),
		RecvTokens:   int(resp.Usage.OutputTokens),
	}
}
