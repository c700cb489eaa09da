package coordengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func TestExtractTeamUpCall(t *testing.T) {
	result := meshtypes.LLMResult{ToolCalls: []meshtypes.ToolCall{
		{Name: "agent_discovery", Arguments: map[string]any{"queries": []any{"go"}}},
		{Name: "team_up", Arguments: map[string]any{"team_members": []any{"Alice", "Bob"}}},
	}}
	done, names := extractTeamUpCall(result)
	assert.True(t, done)
	assert.Equal(t, []string{"Alice", "Bob"}, names)
}

func TestExtractTeamUpCallAbsent(t *testing.T) {
	result := meshtypes.LLMResult{ToolCalls: []meshtypes.ToolCall{
		{Name: "agent_discovery", Arguments: map[string]any{"queries": []any{"go"}}},
	}}
	done, names := extractTeamUpCall(result)
	assert.False(t, done)
	assert.Nil(t, names)
}

func TestExtractDiscoveryQueries(t *testing.T) {
	result := meshtypes.LLMResult{ToolCalls: []meshtypes.ToolCall{
		{Name: "agent_discovery", Arguments: map[string]any{"queries": []any{"go", "rust"}}},
	}}
	assert.Equal(t, []string{"go", "rust"}, extractDiscoveryQueries(result))
}

func TestDiscoveryResultsPromptEmpty(t *testing.T) {
	assert.Contains(t, discoveryResultsPrompt(nil), "no new candidates")
}

func TestDiscoveryResultsPromptListsFound(t *testing.T) {
	found := []meshtypes.AgentInfo{{Name: "Carol", Desc: "writes docs"}}
	p := discoveryResultsPrompt(found)
	assert.Contains(t, p, "Carol: writes docs")
}

func TestTeamMemberMap(t *testing.T) {
	m := teamMemberMap(meshtypes.AgentInfo{Name: "Alice", Desc: "plans releases", Type: meshtypes.HumanAssistant})
	assert.Equal(t, "Alice", m["name"])
	assert.Equal(t, "plans releases", m["desc"])
	assert.Equal(t, "HumanAssistant", m["type"])
}
