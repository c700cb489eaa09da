package chatmemory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func TestAppendIsOrdered(t *testing.T) {
	h := New()
	h.Append(meshtypes.LLMResult{Content: "first", Name: "AgentA"})
	h.Append(meshtypes.LLMResult{Content: "second", Name: "AgentB"})

	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].ContentString())
	assert.Equal(t, "second", entries[1].ContentString())
}

func TestToMessagesFlipsRoleForViewer(t *testing.T) {
	h := New()
	h.Append(meshtypes.LLMResult{Content: "hello", Name: "AgentA"})
	h.Append(meshtypes.LLMResult{Content: "hi back", Name: "AgentB"})

	msgs := h.ToMessages("AgentA")
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "[AgentB]: hi back", msgs[1].Content)
}

func TestResetClears(t *testing.T) {
	h := New()
	h.Append(meshtypes.LLMResult{Content: "x", Name: "AgentA"})
	h.Reset()
	assert.Equal(t, 0, h.Len())
}

func TestJSONRoundTrip(t *testing.T) {
	h := New()
	h.Append(meshtypes.LLMResult{Content: "hello", Name: "AgentA", SendTokens: 3})

	data, err := json.Marshal(h)
	require.NoError(t, err)

	h2 := New()
	require.NoError(t, json.Unmarshal(data, h2))
	assert.Equal(t, h.Entries(), h2.Entries())
}
