// Package taskmanager is the per-session task ledger: task lifecycle,
// the trigger set gating a paused discussion's resumption, the
// assignment-wait tracker, and the dynamic collaborative plan log.
//
// The trigger mechanism is a flattened, boolean-valued generalisation of the
// teacher's dependency-ready-node gating in pkg/swarm/dag.go — rather than a
// DAG of typed edges, a session tracks one flat set of task ids that must
// all reach a terminal status before the pausing member regains the floor.
package taskmanager

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// AssignmentWait gates the post-assignment speaker: after an assignment
// broadcast, no further coordination turn runs until every assignee has
// replied with an INFORM message.
type AssignmentWait struct {
	CommID      string          `json:"comm_id"`
	AwaitAgents map[string]bool `json:"await_agents"`
}

func newAssignmentWait(commID string) *AssignmentWait {
	return &AssignmentWait{CommID: commID, AwaitAgents: map[string]bool{}}
}

// Register replaces the await set with names, clearing any prior state.
func (w *AssignmentWait) Register(names []string) {
	w.AwaitAgents = make(map[string]bool, len(names))
	for _, n := range names {
		w.AwaitAgents[n] = true
	}
}

// Mark removes name from the await set once it has reported in.
func (w *AssignmentWait) Mark(name string) {
	delete(w.AwaitAgents, name)
}

// Empty reports whether every assignee has reported in.
func (w *AssignmentWait) Empty() bool {
	return len(w.AwaitAgents) == 0
}

// indexedEntry pairs a TaskEntry with its insertion index.
type indexedEntry struct {
	index int
	entry *meshtypes.TaskEntry
}

// Manager is the per-session task ledger. All mutating methods serialise
// against an internal mutex; the coordination engine calls them without
// holding its own per-session mutex, so this mutex alone serialises them.
type Manager struct {
	mu sync.Mutex

	globalIndex int
	tasks       map[string]*indexedEntry
	byIndex     map[int]*meshtypes.TaskEntry

	AssignWait *AssignmentWait `json:"task_assign_manager"`

	triggers        map[string]bool
	triggerSetter   string
	prevTriggered   bool
	currTriggered   bool

	msgToTask map[string]meshtypes.TaskEntry // keyed by a stable hash of the bound LLMResult

	plan []string
}

// New creates an empty task manager for the given session.
func New(commID string) *Manager {
	return &Manager{
		tasks:         map[string]*indexedEntry{},
		byIndex:       map[int]*meshtypes.TaskEntry{},
		AssignWait:    newAssignmentWait(commID),
		triggers:      map[string]bool{},
		prevTriggered: true,
		currTriggered: true,
		msgToTask:     map[string]meshtypes.TaskEntry{},
		plan:          []string{"No collaborative consensual plans shaped yet."},
	}
}

// CreateTask registers a new task, assigning a monotonically increasing
// index and a fresh uuid when id is empty.
func (m *Manager) CreateTask(desc, abstract, assignee string, status meshtypes.TaskStatus, id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTaskLocked(desc, abstract, assignee, status, id)
}

func (m *Manager) createTaskLocked(desc, abstract, assignee string, status meshtypes.TaskStatus, id string) string {
	if id == "" {
		id = uuid.New().String()
	}
	entry := &meshtypes.TaskEntry{
		TaskID:       id,
		TaskDesc:     desc,
		TaskAbstract: abstract,
		Assignee:     assignee,
		Status:       status,
	}
	idx := m.globalIndex
	m.globalIndex++
	m.tasks[id] = &indexedEntry{index: idx, entry: entry}
	m.byIndex[idx] = entry
	return id
}

// UpdateTask creates the task if id is unknown (out-of-order delivery),
// otherwise applies the monotone status upgrade. When status reaches
// Completed or Failed, if msgKey is non-empty it is bound to the task for
// later reference-material reconstruction, and a satisfied trigger for id
// is marked true and current_triggers_status recomputed.
func (m *Manager) UpdateTask(id, desc, abstract, assignee string, status meshtypes.TaskStatus, conclusion, msgKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ie, ok := m.tasks[id]
	if !ok {
		m.createTaskLocked(desc, abstract, assignee, status, id)
		ie = m.tasks[id]
	} else {
		ie.entry.UpdateStatus(status)
	}
	if conclusion != "" {
		c := conclusion
		ie.entry.Conclusion = &c
	}

	if status.IsTerminal() {
		if _, tracked := m.triggers[id]; tracked {
			m.prevTriggered = m.currTriggered
			m.triggers[id] = true
			m.currTriggered = m.checkTriggersLocked()
		}
		if msgKey != "" {
			m.msgToTask[msgKey] = *ie.entry
		}
	}
}

// TaskByID returns a copy of the task entry for id, or ok=false if unknown.
func (m *Manager) TaskByID(id string) (meshtypes.TaskEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ie, ok := m.tasks[id]
	if !ok {
		return meshtypes.TaskEntry{}, false
	}
	return *ie.entry, true
}

// TaskForMessage returns the TaskEntry bound to msgKey via UpdateTask, used
// to reconstruct reference material when rephrasing a new assignment.
func (m *Manager) TaskForMessage(msgKey string) (meshtypes.TaskEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.msgToTask[msgKey]
	return t, ok
}

// SetTriggers is called by the pause initiator. Each selector resolves via
// index or id; existing non-terminal tasks register trigger=false, terminal
// (or already-satisfied) ones register trigger=true. If the resulting set is
// empty or already all-true, triggers are cleared and activated=false;
// otherwise setter is recorded and activated=true.
func (m *Manager) SetTriggers(selection []string, setter string) (activated bool, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.populateTriggersLocked(selection, setter, false)
}

// UpdateTriggers is called by non-initiators observing the same pause.
// Unlike SetTriggers, an id not present in this client's task manager is
// kept with trigger=false rather than dropped, tolerating message-delivery
// latency across the mesh.
func (m *Manager) UpdateTriggers(selection []string, setter string) (activated bool, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.populateTriggersLocked(selection, setter, true)
}

func (m *Manager) populateTriggersLocked(selection []string, setter string, keepUnknown bool) (bool, []string) {
	var ids []string
	for _, sel := range selection {
		task := m.resolveSelectorLocked(sel)
		if task == nil {
			if keepUnknown {
				m.triggers[sel] = false
				ids = append(ids, sel)
			}
			continue
		}
		ids = append(ids, task.TaskID)
		if task.Status.Priority() < meshtypes.Completed.Priority() {
			m.triggers[task.TaskID] = false
		} else {
			m.triggers[task.TaskID] = true
		}
	}

	m.prevTriggered = m.currTriggered
	m.currTriggered = m.checkTriggersLocked()

	if len(m.triggers) == 0 || m.currTriggered {
		m.clearTriggersLocked()
		return false, ids
	}
	m.triggerSetter = setter
	return true, ids
}

// resolveSelectorLocked resolves a selector that may be a decimal index or a
// task id string, returning nil if neither resolves to a known task.
func (m *Manager) resolveSelectorLocked(sel string) *meshtypes.TaskEntry {
	if ie, ok := m.tasks[sel]; ok {
		return ie.entry
	}
	var idx int
	if _, err := fmt.Sscanf(sel, "%d", &idx); err == nil {
		if e, ok := m.byIndex[idx]; ok {
			return e
		}
	}
	return nil
}

// IsTriggered reports the one-shot false→true edge.
func (m *Manager) IsTriggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.prevTriggered && m.currTriggered
}

// TriggerSetter returns the name of the agent who is permitted to consume
// the trigger set, or "" if none is set.
func (m *Manager) TriggerSetter() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerSetter
}

// ClearTriggers resets the setter and both status flags to true and empties
// the trigger map.
func (m *Manager) ClearTriggers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearTriggersLocked()
}

func (m *Manager) clearTriggersLocked() {
	m.triggers = map[string]bool{}
	m.triggerSetter = ""
	m.prevTriggered = true
	m.currTriggered = true
}

func (m *Manager) checkTriggersLocked() bool {
	for _, ready := range m.triggers {
		if !ready {
			return false
		}
	}
	return true
}

// TasksView renders a textual snapshot grouped by insertion index, for
// injection into the discussion prompt.
func (m *Manager) TasksView() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("The view of task management:\n")
	if len(m.tasks) == 0 {
		b.WriteString("No tasks existed\n")
		return b.String()
	}
	for idx := 0; idx < m.globalIndex; idx++ {
		e, ok := m.byIndex[idx]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "=== task index : %d===\n", idx)
		fmt.Fprintf(&b, "Assignee: %s\nTask abstract: %s\nStatus: %s\n", e.Assignee, e.TaskAbstract, e.Status)
	}
	return b.String()
}

// TasksByStatus returns tasks whose status is in statuses (nil matches all).
func (m *Manager) TasksByStatus(statuses ...meshtypes.TaskStatus) []meshtypes.TaskEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []meshtypes.TaskEntry
	for idx := 0; idx < m.globalIndex; idx++ {
		e, ok := m.byIndex[idx]
		if !ok {
			continue
		}
		if len(statuses) == 0 || containsStatus(statuses, e.Status) {
			out = append(out, *e)
		}
	}
	return out
}

func containsStatus(list []meshtypes.TaskStatus, s meshtypes.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// UpdatePlan appends text to the dynamic collaborative plan log.
func (m *Manager) UpdatePlan(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = append(m.plan, text)
}

// GetLatestPlan returns the most recently appended plan text.
func (m *Manager) GetLatestPlan() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan[len(m.plan)-1]
}
