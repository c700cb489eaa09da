package meshtypes

import (
	"encoding/json"
	"fmt"
)

// CommunicationState tracks where a session sits in its overall lifecycle.
// Ordinals match the canonical ordering (Teamup=0 .. Execution=3); the wire
// format serialises the integer, not the name.
type CommunicationState int

const (
	Teamup CommunicationState = iota
	Discussion
	Vote
	Execution
)

var commStateNames = [...]string{"Teamup", "Discussion", "Vote", "Execution"}

func (s CommunicationState) String() string {
	if s < 0 || int(s) >= len(commStateNames) {
		return fmt.Sprintf("CommunicationState(%d)", int(s))
	}
	return commStateNames[s]
}

func (s CommunicationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *CommunicationState) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding CommunicationState: %w", err)
	}
	*s = CommunicationState(n)
	return nil
}

// CommunicationType is the message-kind tag of an AgentMessage. Ordinals
// match the canonical ordering Default=0 .. Conclusion=11.
type CommunicationType int

const (
	TypeDefault CommunicationType = iota
	TypeProposal
	TypeVote
	TypeVotingResult
	TypeDiscussion
	TypeSyncAssign
	TypeAsyncAssign
	TypeInformResult
	TypeInformProgress
	TypePause
	TypeConcludeDiscussion
	TypeConclusion
)

var commTypeNames = [...]string{
	"Default", "Proposal", "Vote", "VotingResult", "Discussion",
	"SyncAssign", "AsyncAssign", "InformResult", "InformProgress",
	"Pause", "ConcludeDiscussion", "Conclusion",
}

func (t CommunicationType) String() string {
	if t < 0 || int(t) >= len(commTypeNames) {
		return fmt.Sprintf("CommunicationType(%d)", int(t))
	}
	return commTypeNames[t]
}

func (t CommunicationType) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *CommunicationType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding CommunicationType: %w", err)
	}
	*t = CommunicationType(n)
	return nil
}

// messageTypeToTag holds the discussion-prompt-facing string for a message
// type, used when composing and parsing LLM turn output ("message_type").
var messageTypeToTag = map[CommunicationType]string{
	TypeDiscussion:         "discussion",
	TypeAsyncAssign:        "async_task_assign",
	TypeSyncAssign:         "sync_task_assign",
	TypePause:              "pause",
	TypeConcludeDiscussion: "conclude_group_discussion",
}

var tagToMessageType = func() map[string]CommunicationType {
	m := make(map[string]CommunicationType, len(messageTypeToTag))
	for t, s := range messageTypeToTag {
		m[s] = t
	}
	return m
}()

// MessageTypeTag returns the LLM-facing tag for t, or "" if t has none.
func MessageTypeTag(t CommunicationType) string {
	return messageTypeToTag[t]
}

// MessageTypeFromTag resolves an LLM-facing tag back to its CommunicationType.
func MessageTypeFromTag(tag string) (CommunicationType, bool) {
	t, ok := tagToMessageType[tag]
	return t, ok
}

// TaskStatus is monotone non-decreasing by Priority; Failed shares
// Completed's terminal priority so either one releases a trigger.
type TaskStatus int

const (
	ToStart TaskStatus = iota
	InProgress
	Completed
	Failed
)

// Priority returns the status's rank for the monotone-upgrade rule. Completed
// and Failed share priority 2: once a task reaches either, it is terminal.
func (s TaskStatus) Priority() int {
	switch s {
	case ToStart:
		return 0
	case InProgress:
		return 1
	default:
		return 2
	}
}

// IsTerminal reports whether s is Completed or Failed.
func (s TaskStatus) IsTerminal() bool {
	return s.Priority() >= Completed.Priority()
}

var taskStatusNames = [...]string{"ToStart", "InProgress", "Completed", "Failed"}

func (s TaskStatus) String() string {
	if s < 0 || int(s) >= len(taskStatusNames) {
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
	return taskStatusNames[s]
}

func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding TaskStatus: %w", err)
	}
	*s = TaskStatus(n)
	return nil
}
