// Package chatmemory is the append-only per-session transcript rendered for
// LLM consumption, grounded on the teacher's Blackboard (sync.RWMutex-guarded
// state with a JSON round-trip contract) but reshaped from a keyed map into
// an ordered log, since chat history is sequential rather than
// latest-value-wins.
package chatmemory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// Message is one entry as rendered for an LLM provider.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// History is a thread-safe append-only sequence of LLMResult entries.
type History struct {
	mu      sync.RWMutex
	entries []meshtypes.LLMResult
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Append records entry at the end of the log.
func (h *History) Append(entry meshtypes.LLMResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

// Reset clears the log.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a snapshot copy of the raw log, in append order.
func (h *History) Entries() []meshtypes.LLMResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]meshtypes.LLMResult, len(h.entries))
	copy(out, h.entries)
	return out
}

// ToMessages renders the log for viewerName: entries authored by viewerName
// become assistant-roled messages; all others become user-roled messages
// with a "[name]: " prefix already embedded in content, per the chat
// rendering rule every other participant's turn carries its speaker tag.
func (h *History) ToMessages(viewerName string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, 0, len(h.entries))
	for _, e := range h.entries {
		content := e.ContentString()
		if e.Name == viewerName {
			out = append(out, Message{Role: "assistant", Content: content, ToolCallID: e.ToolCallID})
			continue
		}
		prefixed := content
		if e.Name != "" {
			prefixed = fmt.Sprintf("[%s]: %s", e.Name, content)
		}
		out = append(out, Message{Role: "user", Content: prefixed, Name: e.Name, ToolCallID: e.ToolCallID})
	}
	return out
}

// MarshalJSON renders the log as a bare JSON array, the round-trip contract
// the persistent store relies on when saving CommunicationInfo.Memory.
func (h *History) MarshalJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.Marshal(h.entries)
}

func (h *History) UnmarshalJSON(data []byte) error {
	var entries []meshtypes.LLMResult
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decoding chat history: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = entries
	return nil
}
