package meshtypes

import (
	"encoding/json"
	"fmt"
)

// NextSpeaker is the duck-typed next_speaker field: on the wire it is either
// a bare string or a JSON array of strings. It is kept as a tagged union at
// rest and only normalised to a list at the point a reader consumes it, so
// round-tripping preserves whichever shape the sender used.
type NextSpeaker struct {
	single string
	many   []string
	isMany bool
}

// SingleNextSpeaker builds a NextSpeaker carrying one name.
func SingleNextSpeaker(name string) NextSpeaker {
	return NextSpeaker{single: name}
}

// ManyNextSpeaker builds a NextSpeaker carrying a list of names.
func ManyNextSpeaker(names []string) NextSpeaker {
	return NextSpeaker{many: names, isMany: true}
}

// Names normalises the field to a list, regardless of wire shape.
func (n NextSpeaker) Names() []string {
	if n.isMany {
		return n.many
	}
	if n.single == "" {
		return nil
	}
	return []string{n.single}
}

// Contains reports whether name appears among the normalised names.
func (n NextSpeaker) Contains(name string) bool {
	for _, c := range n.Names() {
		if c == name {
			return true
		}
	}
	return false
}

func (n NextSpeaker) MarshalJSON() ([]byte, error) {
	if n.isMany {
		return json.Marshal(n.many)
	}
	return json.Marshal(n.single)
}

func (n *NextSpeaker) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = NextSpeaker{single: s}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("decoding next_speaker: %w", err)
	}
	*n = NextSpeaker{many: many, isMany: true}
	return nil
}

// AgentMessage is the wire and archival representation of a single turn.
// Field names match the external JSON contract exactly.
type AgentMessage struct {
	Content     string             `json:"content"`
	Sender      string             `json:"sender"`
	CommID      string             `json:"comm_id"`
	NextSpeaker NextSpeaker        `json:"next_speaker"`
	State       CommunicationState `json:"state"`
	Type        CommunicationType  `json:"type"`
	ProposalID  string             `json:"proposal_id,omitempty"`

	// Populated only on the first message after teaming up.
	Goal         string           `json:"goal,omitempty"`
	TeamMembers  []map[string]any `json:"team_members,omitempty"`
	TeamUpDepth  *int             `json:"team_up_depth,omitempty"`

	// Task-manager linkage.
	TaskID          string   `json:"task_id,omitempty"`
	TaskDesc        string   `json:"task_desc,omitempty"`
	TaskConclusion  string   `json:"task_conclusion,omitempty"`
	TaskAbstract    string   `json:"task_abstract,omitempty"`
	Triggers        []string `json:"triggers,omitempty"`
	UpdatedPlan     string   `json:"updated_plan,omitempty"`

	IsCollaborativePlanningEnabled bool `json:"is_collaborative_planning_enabled"`
	MaxTurns                       *int `json:"max_turns,omitempty"`
}

// ToLLMResult converts a routed message into the assistant-authored memory
// entry form used by Chat History Memory.
func (m AgentMessage) ToLLMResult() LLMResult {
	return LLMResult{Content: m.Content, Role: "assistant", Name: m.Sender, MessageTag: m.Type}
}
