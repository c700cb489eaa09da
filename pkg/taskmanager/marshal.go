package taskmanager

import (
	"encoding/json"
	"fmt"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// taskRecord pairs an entry with its insertion index for serialization,
// mirroring the teacher's {task_id: (task_index, task_entry)} shape.
type taskRecord struct {
	Index int                    `json:"index"`
	Entry meshtypes.TaskEntry    `json:"entry"`
}

type wireManager struct {
	GlobalIndex     int                        `json:"global_index"`
	Tasks           map[string]taskRecord      `json:"tasks"`
	AssignWait      *AssignmentWait            `json:"task_assign_manager"`
	Triggers        map[string]bool            `json:"triggers"`
	TriggerSetter   string                     `json:"trigger_setter,omitempty"`
	PrevTriggered   bool                       `json:"previous_triggers_status"`
	CurrTriggered   bool                       `json:"current_triggers_status"`
	MsgToTask       map[string]meshtypes.TaskEntry `json:"msg2task"`
	Plan            []string                   `json:"dynamic_collaborative_planner"`
}

// MarshalJSON renders the full internal state, including trigger flags and
// the msg↔task binding, so store-and-reload round-trips exactly.
func (m *Manager) MarshalJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make(map[string]taskRecord, len(m.tasks))
	for id, ie := range m.tasks {
		tasks[id] = taskRecord{Index: ie.index, Entry: *ie.entry}
	}

	w := wireManager{
		GlobalIndex:   m.globalIndex,
		Tasks:         tasks,
		AssignWait:    m.AssignWait,
		Triggers:      m.triggers,
		TriggerSetter: m.triggerSetter,
		PrevTriggered: m.prevTriggered,
		CurrTriggered: m.currTriggered,
		MsgToTask:     m.msgToTask,
		Plan:          m.plan,
	}
	return json.Marshal(w)
}

func (m *Manager) UnmarshalJSON(data []byte) error {
	var w wireManager
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding task manager: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.globalIndex = w.GlobalIndex
	m.tasks = make(map[string]*indexedEntry, len(w.Tasks))
	m.byIndex = make(map[int]*meshtypes.TaskEntry, len(w.Tasks))
	for id, rec := range w.Tasks {
		entry := rec.Entry
		ie := &indexedEntry{index: rec.Index, entry: &entry}
		m.tasks[id] = ie
		m.byIndex[rec.Index] = ie.entry
	}

	m.AssignWait = w.AssignWait
	if m.AssignWait == nil {
		m.AssignWait = newAssignmentWait("")
	}
	m.triggers = w.Triggers
	if m.triggers == nil {
		m.triggers = map[string]bool{}
	}
	m.triggerSetter = w.TriggerSetter
	m.prevTriggered = w.PrevTriggered
	m.currTriggered = w.CurrTriggered
	m.msgToTask = w.MsgToTask
	if m.msgToTask == nil {
		m.msgToTask = map[string]meshtypes.TaskEntry{}
	}
	m.plan = w.Plan
	if len(m.plan) == 0 {
		m.plan = []string{"No collaborative consensual plans shaped yet."}
	}
	return nil
}
