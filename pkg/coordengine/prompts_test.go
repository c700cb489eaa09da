package coordengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func TestPersonaPromptVariesByAgentType(t *testing.T) {
	human := personaPrompt(meshtypes.AgentInfo{Name: "Alice", Type: meshtypes.HumanAssistant, Desc: "plans releases"})
	assert.Contains(t, human, "human-backed assistant")
	assert.Contains(t, human, "Alice")

	thing := personaPrompt(meshtypes.AgentInfo{Name: "Fetcher", Type: meshtypes.ThingAssistant, Desc: "fetches URLs"})
	assert.Contains(t, thing, "tool-backed assistant")
	assert.Contains(t, thing, "Fetcher")
	assert.NotContains(t, thing, "human-backed")
}

func TestCoordinationPromptListsGoalAndTeam(t *testing.T) {
	info := meshtypes.CommunicationInfo{
		Goal: "ship the release",
		TeamMembers: []map[string]any{
			{"name": "Alice"}, {"name": "Bob"},
		},
	}
	p := coordinationPrompt(info)
	assert.Contains(t, p, "ship the release")
	assert.Contains(t, p, "Alice, Bob")
}

func TestNextTurnAppendPromptForcesConclusion(t *testing.T) {
	forced := nextTurnAppendPrompt(true, false)
	assert.Contains(t, forced, "conclude_group_discussion")

	ordinary := nextTurnAppendPrompt(false, false)
	assert.Contains(t, ordinary, "async_task_assign")
	assert.Contains(t, ordinary, "pause")
}

func TestNextTurnAppendPromptExcludesAssignmentTypesWhenDiscussionOnly(t *testing.T) {
	p := nextTurnAppendPrompt(false, true)
	assert.Contains(t, p, "discussion")
	assert.Contains(t, p, "pause")
	assert.NotContains(t, p, "async_task_assign")
	assert.NotContains(t, p, "sync_task_assign")
}

func TestPauseSelectionPromptListsTaskIDsNotPositions(t *testing.T) {
	tasks := []meshtypes.TaskEntry{
		{TaskID: "t-abc", TaskAbstract: "collect data", Assignee: "Bob", Status: meshtypes.InProgress},
		{TaskID: "t-def", TaskAbstract: "write report", Assignee: "Carol", Status: meshtypes.ToStart},
	}
	p := pauseSelectionPrompt(tasks)
	assert.Contains(t, p, "task_id t-abc")
	assert.Contains(t, p, "task_id t-def")
	assert.NotContains(t, p, "task index")
}

func TestObservationPromptEmptyOnBlankSnapshot(t *testing.T) {
	assert.Equal(t, "", observationPrompt(""))
	assert.Contains(t, observationPrompt("door is closed"), "door is closed")
}
