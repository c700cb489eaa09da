package coordengine

import (
	"fmt"
	"strings"

	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/taskmanager"
)

// personaPrompt is the system-persona prompt, with a Human and Thing
// variant selected by the engine's own AgentType.
func personaPrompt(self meshtypes.AgentInfo) string {
	if self.Type == meshtypes.ThingAssistant {
		return fmt.Sprintf(
			"You are %s, an automated tool-backed assistant. %s\n"+
				"You act strictly within your described capability and never claim judgment you do not have.",
			self.Name, self.Desc)
	}
	return fmt.Sprintf(
		"You are %s, a human-backed assistant. %s\n"+
			"You collaborate with teammates as a peer, weighing in with your own judgment.",
		self.Name, self.Desc)
}

// multiAgentRulesPrompt is the fixed rules-of-engagement prompt shared by
// every discussion turn.
const multiAgentRulesPrompt = `You are one participant in a structured multi-agent group discussion.
Every turn you produce exactly one message, addressed to a next speaker (or speakers, for
a task assignment). Do not speak for other participants. Keep your content self-contained:
a teammate reading only your message, the task view, and the plan must be able to act on it.`

// coordinationPrompt lists the current team and the session goal.
func coordinationPrompt(info meshtypes.CommunicationInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session goal: %s\n", info.Goal)
	b.WriteString("Team members: ")
	b.WriteString(strings.Join(info.MemberNames(), ", "))
	b.WriteString("\n")
	return b.String()
}

// nextTurnAppendPrompt enumerates the allowed message_type values for the
// next-turn decision, forcing a conclusion once max_turns is reached.
// When discussionOnly is set, async_task_assign/sync_task_assign are left
// out of the enumeration entirely — this session never delegates work, so
// offering the LLM a message type it should never choose only invites it.
// A message of either type arriving from another member is still accepted
// on receipt (spec.md leaves that half of the interaction ambiguous; see
// DESIGN.md).
func nextTurnAppendPrompt(forceConclusion, discussionOnly bool) string {
	if forceConclusion {
		return "The maximum turn count has been reached. You must respond with " +
			`message_type="conclude_group_discussion" and next_people=[yourself].`
	}
	if discussionOnly {
		return `Respond with strict JSON: {content, thought, message_type, next_people, thought_on_plan?, update_plan?}.
message_type must be one of:
  "discussion"                 - next_people is a single name
  "pause"                      - suspend this thread until the named tasks complete
  "conclude_group_discussion"  - end the discussion with a final answer`
	}
	return `Respond with strict JSON: {content, thought, message_type, next_people, thought_on_plan?, update_plan?}.
message_type must be one of:
  "discussion"                 - next_people is a single name
  "async_task_assign"          - next_people is the list of task owners
  "sync_task_assign"           - next_people is the list of task owners
  "pause"                      - suspend this thread until the named tasks complete
  "conclude_group_discussion"  - end the discussion with a final answer`
}

func planPrompt(tm *taskmanager.Manager) string {
	return "Current collaborative plan: " + tm.GetLatestPlan()
}

func observationPrompt(snapshot string) string {
	if snapshot == "" {
		return ""
	}
	return "Current observed world state: " + snapshot
}

// pauseSelectionPrompt enumerates non-terminal tasks for the dedicated
// pause-selection LLM call. Selections are echoed back as task ids, which
// taskmanager.Manager's SetTriggers/UpdateTriggers accept directly.
func pauseSelectionPrompt(nonTerminal []meshtypes.TaskEntry) string {
	var b strings.Builder
	b.WriteString("Select the task ids this pause should wait on from the following non-terminal tasks:\n")
	for _, t := range nonTerminal {
		fmt.Fprintf(&b, "task_id %s: %s (assignee %s, status %s)\n", t.TaskID, t.TaskAbstract, t.Assignee, t.Status)
	}
	b.WriteString(`Respond with strict JSON: {"selected_task_indices": ["<task_id>", ...]}`)
	return b.String()
}

func rephrasePrompt() string {
	return `Transform the recent discussion and any completed task summaries referenced below into a
self-contained task brief for an executor with no access to this conversation. Respond with
strict JSON: {abstract, description, context, completion_criteria, index_to_integrate}, where
index_to_integrate selects, by position, which of the reference entries below must be embedded
verbatim as "Task Inputs" in the final brief.`
}
