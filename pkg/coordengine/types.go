// Package coordengine is the per-agent Coordination Engine: the group-chat
// state machine driving a session from team-up through discussion,
// task assignment, pause-and-trigger, and conclusion, together with the
// rephrasing stage and nested-teamup recursion. Dispatch-by-type and the
// overall loop shape are grounded on the teacher's pkg/swarm/coordinator.go;
// nested recursion's depth/cycle guard is grounded on
// pkg/multiagent/handoff.go's ExecuteHandoff.
package coordengine

import (
	"context"
)

// Executor runs one rephrased task end-to-end and returns its conclusion
// text. A nil Executor means the coordination LLM itself must produce the
// conclusion inline.
type Executor interface {
	Run(ctx context.Context, taskContent string) (string, error)
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, taskContent string) (string, error)

func (f ExecutorFunc) Run(ctx context.Context, taskContent string) (string, error) { return f(ctx, taskContent) }

// messageTypeTag is the LLM-facing discriminator for a next-turn decision,
// distinct from meshtypes.CommunicationType, which is the wire-level
// envelope tag derived from it.
type messageTypeTag string

const (
	tagDiscussion        messageTypeTag = "discussion"
	tagAsyncTaskAssign    messageTypeTag = "async_task_assign"
	tagSyncTaskAssign     messageTypeTag = "sync_task_assign"
	tagPause              messageTypeTag = "pause"
	tagConcludeDiscussion messageTypeTag = "conclude_group_discussion"
)

// nextTurnOutput is the strict JSON schema the next-turn LLM call must
// produce, per spec.md §4.8.
type nextTurnOutput struct {
	Content       string   `json:"content"`
	Thought       string   `json:"thought"`
	MessageType   string   `json:"message_type"`
	NextPeople    any      `json:"next_people"` // string | []string, normalised by normalizeNextPeople
	ThoughtOnPlan string   `json:"thought_on_plan,omitempty"`
	UpdatePlan    bool     `json:"update_plan,omitempty"`
	TaskDesc      string   `json:"task_desc,omitempty"`
	TaskAbstract  string   `json:"task_abstract,omitempty"`
}

// pauseOutput is the strict JSON schema the dedicated pause-selection LLM
// call must produce.
type pauseOutput struct {
	SelectedTaskIndices []string `json:"selected_task_indices"`
}

// rephraseOutput is the strict JSON schema the rephrasing-for-assignment
// LLM call must produce.
type rephraseOutput struct {
	Abstract          string `json:"abstract"`
	Description       string `json:"description"`
	Context           string `json:"context"`
	CompletionCriteria string `json:"completion_criteria"`
	IndexToIntegrate  []int  `json:"index_to_integrate"`
}

// teamupDiscoveryOutput backs the team_up tool call during LLM-driven
// discovery.
type teamupDiscoveryOutput struct {
	TeamMembers []string `json:"team_members"`
}

