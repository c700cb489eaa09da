package taskmanager

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func TestCreateTaskAssignsIncreasingIndex(t *testing.T) {
	m := New("c1")
	id1 := m.CreateTask("do x", "abstract x", "AgentA", meshtypes.ToStart, "")
	id2 := m.CreateTask("do y", "abstract y", "AgentB", meshtypes.ToStart, "")
	assert.NotEqual(t, id1, id2)

	e1, ok := m.TaskByID(id1)
	require.True(t, ok)
	assert.Equal(t, "do x", e1.TaskDesc)
}

func TestUpdateTaskCreatesUnknownTask(t *testing.T) {
	m := New("c1")
	m.UpdateTask("late-id", "desc", "abstract", "AgentA", meshtypes.InProgress, "", "")

	e, ok := m.TaskByID("late-id")
	require.True(t, ok)
	assert.Equal(t, meshtypes.InProgress, e.Status)
}

func TestUpdateTaskStatusNeverRegresses(t *testing.T) {
	m := New("c1")
	id := m.CreateTask("d", "a", "AgentA", meshtypes.Completed, "")
	m.UpdateTask(id, "d", "a", "AgentA", meshtypes.ToStart, "", "")

	e, _ := m.TaskByID(id)
	assert.Equal(t, meshtypes.Completed, e.Status, "status must not regress")
}

func TestSetTriggersActivatesOnNonTerminalTask(t *testing.T) {
	m := New("c1")
	id := m.CreateTask("d", "a", "AgentB", meshtypes.InProgress, "")

	activated, ids := m.SetTriggers([]string{id}, "AgentA")
	assert.True(t, activated)
	assert.Equal(t, []string{id}, ids)
	assert.Equal(t, "AgentA", m.TriggerSetter())
	assert.False(t, m.IsTriggered(), "not yet triggered until the prior state was false")
}

func TestSetTriggersDegradesWhenAllTerminal(t *testing.T) {
	m := New("c1")
	id := m.CreateTask("d", "a", "AgentB", meshtypes.Completed, "")

	activated, _ := m.SetTriggers([]string{id}, "AgentA")
	assert.False(t, activated, "already-satisfied selection must not activate a pause")
	assert.Equal(t, "", m.TriggerSetter())
}

func TestCompletingTriggeredTaskFlipsIsTriggeredOnce(t *testing.T) {
	m := New("c1")
	id := m.CreateTask("d", "a", "AgentB", meshtypes.InProgress, "")
	activated, _ := m.SetTriggers([]string{id}, "AgentA")
	require.True(t, activated)
	assert.False(t, m.IsTriggered())

	m.UpdateTask(id, "d", "a", "AgentB", meshtypes.Completed, "", "")
	assert.True(t, m.IsTriggered(), "completion of the only trigger must flip the edge to true")

	// IsTriggered does not consume the edge; it stays true until
	// ClearTriggers (or the next SetTriggers/UpdateTriggers call) resets it.
	m.ClearTriggers()
	assert.False(t, m.IsTriggered())
}

func TestSetTriggersPanicsNeverOnEmptySelection(t *testing.T) {
	m := New("c1")
	activated, ids := m.SetTriggers(nil, "AgentA")
	assert.False(t, activated)
	assert.Empty(t, ids)
}

func TestUpdateTriggersKeepsUnknownIDsUnlikeSetTriggers(t *testing.T) {
	m := New("c1")
	activated, ids := m.UpdateTriggers([]string{"not-registered-yet"}, "AgentA")
	assert.True(t, activated, "an unknown id is kept as an unresolved (false) trigger")
	assert.Equal(t, []string{"not-registered-yet"}, ids)
}

func TestDynamicPlanGrowsMonotonically(t *testing.T) {
	m := New("c1")
	assert.Equal(t, "No collaborative consensual plans shaped yet.", m.GetLatestPlan())

	m.UpdatePlan("plan v1")
	assert.Equal(t, "plan v1", m.GetLatestPlan())

	m.UpdatePlan("plan v2")
	assert.Equal(t, "plan v2", m.GetLatestPlan())
}

func TestAssignmentWaitGating(t *testing.T) {
	w := newAssignmentWait("c1")
	w.Register([]string{"AgentB", "AgentC"})
	assert.False(t, w.Empty())

	w.Mark("AgentB")
	assert.False(t, w.Empty())

	w.Mark("AgentC")
	assert.True(t, w.Empty())
}

func TestJSONRoundTripPreservesTriggersAndBindings(t *testing.T) {
	m := New("c1")
	id := m.CreateTask("d", "a", "AgentB", meshtypes.InProgress, "")
	m.SetTriggers([]string{id}, "AgentA")
	m.UpdateTask(id, "d", "a", "AgentB", meshtypes.Completed, "done", "msg-1")
	m.UpdatePlan("plan v1")

	data, err := json.Marshal(m)
	require.NoError(t, err)

	m2 := New("c1")
	require.NoError(t, json.Unmarshal(data, m2))

	assert.Equal(t, m.GetLatestPlan(), m2.GetLatestPlan())
	assert.Equal(t, m.IsTriggered(), m2.IsTriggered())
	e1, _ := m.TaskByID(id)
	e2, _ := m2.TaskByID(id)
	assert.Equal(t, e1, e2)
	t1, ok1 := m.TaskForMessage("msg-1")
	t2, ok2 := m2.TaskForMessage("msg-1")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, t1, t2)
}
