package meshtypes

// ToolCall is one normalised function call extracted from an LLM response,
// built by the provider adapter from one tool-use block. Parallel tool-use
// wrappers are not unpacked; such a call keeps the wrapper's own name.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatTurn is one entry of the caller-supplied history passed to Generate.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// LLMResult is both the Generate() return value and the unit of Chat
// History Memory: content may be a plain string or, under
// response_format=json_object, the parsed JSON value.
type LLMResult struct {
	Content    any        `json:"content"`
	Role       string     `json:"role"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	SendTokens int        `json:"send_tokens"`
	RecvTokens int        `json:"recv_tokens"`

	// MessageTag carries the originating AgentMessage.Type for an entry
	// archived into Chat History Memory via AgentMessage.ToLLMResult, so a
	// later reader (the rephrasing reference corpus) can tell a routine
	// background-progress announcement from an ordinary discussion turn
	// without re-parsing content. Zero (TypeDefault) for entries that never
	// passed through an AgentMessage, e.g. a Generate() call's own return.
	MessageTag CommunicationType `json:"message_tag,omitempty"`
}

// ContentString returns Content coerced to a string, which is the common
// case; callers needing the parsed JSON object read Content directly.
func (r LLMResult) ContentString() string {
	if s, ok := r.Content.(string); ok {
		return s
	}
	return ""
}

// ToolSchema describes one callable tool offered to the LLM.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice selects how the model must use tools: "auto", "required", or a
// specific tool name.
type ToolChoice struct {
	Mode string // "auto" | "required" | "name"
	Name string // set when Mode == "name"
}

var (
	ToolChoiceAuto     = ToolChoice{Mode: "auto"}
	ToolChoiceRequired = ToolChoice{Mode: "required"}
)

// ToolChoiceNamed forces the model to call exactly the named tool.
func ToolChoiceNamed(name string) ToolChoice {
	return ToolChoice{Mode: "name", Name: name}
}

// ResponseFormat selects plain text versus a strict JSON object response.
type ResponseFormat int

const (
	ResponseFormatText ResponseFormat = iota
	ResponseFormatJSONObject
)
