package meshtypes

// TaskEntry tracks one delegated unit of work within a session. Status is
// monotone non-decreasing by TaskStatus.Priority: a regression attempt is a
// silent no-op, matching the teacher's dependency-gating discipline of never
// walking a node backwards once it has advanced.
type TaskEntry struct {
	TaskID       string     `json:"task_id"`
	TaskDesc     string     `json:"task_desc"`
	TaskAbstract string     `json:"task_abstract"`
	Assignee     string     `json:"assignee"`
	Status       TaskStatus `json:"status"`
	Conclusion   *string    `json:"conclusion,omitempty"`
}

// UpdateStatus applies the monotone-upgrade rule: new is only accepted when
// its priority is at least the current priority.
func (t *TaskEntry) UpdateStatus(newStatus TaskStatus) {
	if t.Status.Priority() <= newStatus.Priority() {
		t.Status = newStatus
	}
}

// CommunicationInfo is the per-session, per-client view of an in-progress
// (or concluded) group discussion.
type CommunicationInfo struct {
	CommID                         string           `json:"comm_id"`
	Goal                            string           `json:"goal"`
	TeamMembers                     []map[string]any `json:"team_members"`
	Memory                          []LLMResult      `json:"-"`
	State                           CommunicationState `json:"state"`
	Conclusion                      *string          `json:"conclusion,omitempty"`
	TeamUpDepth                     *int             `json:"team_up_depth,omitempty"`
	IsCollaborativePlanningEnabled  bool             `json:"is_collaborative_planning_enabled"`
	MaxTurns                        *int             `json:"max_turns,omitempty"`
	CurrTurn                        int              `json:"curr_turn"`
	ObsKwargs                       map[string]any   `json:"obs_kwargs,omitempty"`
	DiscussionOnly                  bool             `json:"discussion_only,omitempty"`
}

// MemberNames extracts the plain agent names out of TeamMembers.
func (c *CommunicationInfo) MemberNames() []string {
	names := make([]string, 0, len(c.TeamMembers))
	for _, m := range c.TeamMembers {
		if n, ok := m["name"].(string); ok {
			names = append(names, n)
		}
	}
	return names
}

// HasMember reports whether name is a team member.
func (c *CommunicationInfo) HasMember(name string) bool {
	for _, n := range c.MemberNames() {
		if n == name {
			return true
		}
	}
	return false
}
