package meshtypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommunicationStateOrdinals(t *testing.T) {
	assert.Equal(t, 0, int(Teamup))
	assert.Equal(t, 1, int(Discussion))
	assert.Equal(t, 2, int(Vote))
	assert.Equal(t, 3, int(Execution))
}

func TestCommunicationTypeOrdinals(t *testing.T) {
	assert.Equal(t, 0, int(TypeDefault))
	assert.Equal(t, 1, int(TypeProposal))
	assert.Equal(t, 2, int(TypeVote))
	assert.Equal(t, 3, int(TypeVotingResult))
	assert.Equal(t, 4, int(TypeDiscussion))
	assert.Equal(t, 5, int(TypeSyncAssign))
	assert.Equal(t, 6, int(TypeAsyncAssign))
	assert.Equal(t, 7, int(TypeInformResult))
	assert.Equal(t, 8, int(TypeInformProgress))
	assert.Equal(t, 9, int(TypePause))
	assert.Equal(t, 10, int(TypeConcludeDiscussion))
	assert.Equal(t, 11, int(TypeConclusion))
}

func TestCommunicationTypeJSONIsInteger(t *testing.T) {
	b, err := json.Marshal(TypeAsyncAssign)
	require.NoError(t, err)
	assert.Equal(t, "6", string(b))

	var back CommunicationType
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, TypeAsyncAssign, back)
}

func TestTaskStatusPriorityIsMonotone(t *testing.T) {
	assert.Equal(t, 0, ToStart.Priority())
	assert.Equal(t, 1, InProgress.Priority())
	assert.Equal(t, 2, Completed.Priority())
	assert.Equal(t, 2, Failed.Priority())
	assert.True(t, Completed.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	assert.False(t, InProgress.IsTerminal())
}

func TestTaskEntryUpdateStatusNeverRegresses(t *testing.T) {
	entry := TaskEntry{Status: Completed}
	entry.UpdateStatus(ToStart)
	assert.Equal(t, Completed, entry.Status, "a regression attempt must be a no-op")

	entry2 := TaskEntry{Status: ToStart}
	entry2.UpdateStatus(InProgress)
	assert.Equal(t, InProgress, entry2.Status)
}

func TestNextSpeakerSingleRoundTrip(t *testing.T) {
	ns := SingleNextSpeaker("AgentB")
	b, err := json.Marshal(ns)
	require.NoError(t, err)
	assert.JSONEq(t, `"AgentB"`, string(b))

	var back NextSpeaker
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []string{"AgentB"}, back.Names())
	assert.True(t, back.Contains("AgentB"))
}

func TestNextSpeakerManyRoundTrip(t *testing.T) {
	ns := ManyNextSpeaker([]string{"AgentB", "AgentC"})
	b, err := json.Marshal(ns)
	require.NoError(t, err)

	var back NextSpeaker
	require.NoError(t, json.Unmarshal(b, &back))
	assert.ElementsMatch(t, []string{"AgentB", "AgentC"}, back.Names())
	assert.True(t, back.Contains("AgentC"))
	assert.False(t, back.Contains("AgentD"))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "agent_b_2", SanitizeName("agent-b.2"))
	assert.Equal(t, "agent_name", SanitizeName("agent name"))
}
