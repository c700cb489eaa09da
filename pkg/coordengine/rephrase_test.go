package coordengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func TestMessageKeyStableAndDistinct(t *testing.T) {
	a := meshtypes.LLMResult{Name: "Alice", Content: "hello"}
	b := meshtypes.LLMResult{Name: "Alice", Content: "hello"}
	c := meshtypes.LLMResult{Name: "Bob", Content: "hello"}

	assert.Equal(t, messageKey(a), messageKey(b), "identical sender+content must hash identically")
	assert.NotEqual(t, messageKey(a), messageKey(c), "different sender must hash differently")
}

func TestReferenceCorpusCapsAtFiveEntriesAndBindsCompletedTasks(t *testing.T) {
	state := newSessionState(meshtypes.CommunicationInfo{CommID: "c1"})

	for i := 0; i < 7; i++ {
		state.Memory.Append(meshtypes.LLMResult{Name: "Alice", Content: "turn"})
	}

	bound := meshtypes.LLMResult{Name: "Bob", Content: "please summarize the findings", MessageTag: meshtypes.TypeInformResult}
	state.Memory.Append(bound)
	key := messageKey(bound)
	state.Tasks.UpdateTask("t1", "summarize", "summary task", "Bob", meshtypes.Completed, "done: X causes Y", key)

	refs := referenceCorpus(state)

	require.Len(t, refs, 6, "5 capped ordinary entries plus 1 bound completed task, unconditionally included")
	var sawTask bool
	for _, r := range refs {
		if r.label == "completed task summary task" {
			sawTask = true
			assert.Contains(t, r.body, "done: X causes Y")
		}
	}
	assert.True(t, sawTask, "completed task bound to the InformResult entry must appear in the corpus")
}

func TestReferenceCorpusSkipsProgressStubsWithoutCountingAgainstWindow(t *testing.T) {
	state := newSessionState(meshtypes.CommunicationInfo{CommID: "c1"})

	for i := 0; i < 5; i++ {
		state.Memory.Append(meshtypes.LLMResult{Name: "Alice", Content: "turn"})
	}
	state.Memory.Append(meshtypes.LLMResult{Name: "Bob", Content: "starting task", MessageTag: meshtypes.TypeInformProgress})

	refs := referenceCorpus(state)

	require.Len(t, refs, 5, "a background-progress stub is skipped entirely, not counted against the five-entry window")
	for _, r := range refs {
		assert.NotContains(t, r.body, "starting task")
	}
}

func TestReferenceCorpusOmitsNonCompletedBoundTask(t *testing.T) {
	state := newSessionState(meshtypes.CommunicationInfo{CommID: "c1"})
	msg := meshtypes.LLMResult{Name: "Bob", Content: "working on it", MessageTag: meshtypes.TypeInformResult}
	state.Memory.Append(msg)
	key := messageKey(msg)
	state.Tasks.UpdateTask("t1", "desc", "abstract", "Bob", meshtypes.InProgress, "", key)

	refs := referenceCorpus(state)
	require.Len(t, refs, 0, "an in-progress task is not terminal, so the InformResult entry substitutes for nothing and is dropped")
}
