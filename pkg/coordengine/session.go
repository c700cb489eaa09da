package coordengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentmesh/mesh/pkg/chatmemory"
	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/store"
	"github.com/agentmesh/mesh/pkg/taskmanager"
)

const (
	commInfoTable   = "communication_info"
	taskManagerTable = "task_managers"
)

// SessionState is the full per-client, per-session state: the scalar
// CommunicationInfo fields, the append-only chat memory, and the task
// manager. CommunicationInfo.Memory is deliberately excluded from that
// type's own JSON encoding (see meshtypes.CommunicationInfo) because the
// memory log is persisted here as a separate "memory" field beside Info in
// the communication_info record (persistedInfo) rather than nested inside
// Info, mirroring the Python CommunicationInfo.memory being a reference
// to a shared mutable object rather than embedded data. The round-trip law
// in spec.md §8 ("serialise→deserialise of CommunicationInfo yields an
// equal value, including trigger flags, msg↔task binding, and planner
// history") is satisfied across the two records Save writes per comm_id:
// the task_managers record holds the trigger/binding/planner state, and
// the communication_info record holds the transcript (memory) and
// everything else (info).
type SessionState struct {
	mu     sync.Mutex
	Info   meshtypes.CommunicationInfo
	Memory *chatmemory.History
	Tasks  *taskmanager.Manager
}

func newSessionState(info meshtypes.CommunicationInfo) *SessionState {
	return &SessionState{
		Info:   info,
		Memory: chatmemory.New(),
		Tasks:  taskmanager.New(info.CommID),
	}
}

// SessionStore persists SessionState across restarts, one record per
// table per comm_id.
type SessionStore struct {
	info  *store.Table
	tasks *store.Table
}

func NewSessionStore(ctx context.Context, s *store.Store) (*SessionStore, error) {
	info, err := s.Table(ctx, commInfoTable)
	if err != nil {
		return nil, fmt.Errorf("opening communication_info table: %w", err)
	}
	tasks, err := s.Table(ctx, taskManagerTable)
	if err != nil {
		return nil, fmt.Errorf("opening task_managers table: %w", err)
	}
	return &SessionStore{info: info, tasks: tasks}, nil
}

type persistedInfo struct {
	Info   meshtypes.CommunicationInfo `json:"info"`
	Memory *chatmemory.History         `json:"memory"`
}

// Save persists the scalar fields and memory of state, then the task
// manager (which owns its own marshal round-trip).
func (ss *SessionStore) Save(ctx context.Context, state *SessionState) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if err := ss.info.Put(ctx, state.Info.CommID, persistedInfo{Info: state.Info, Memory: state.Memory}); err != nil {
		return fmt.Errorf("persisting session info %s: %w", state.Info.CommID, err)
	}
	taskData, err := json.Marshal(state.Tasks)
	if err != nil {
		return fmt.Errorf("encoding task manager %s: %w", state.Info.CommID, err)
	}
	if err := ss.tasks.Put(ctx, state.Info.CommID, json.RawMessage(taskData)); err != nil {
		return fmt.Errorf("persisting task manager %s: %w", state.Info.CommID, err)
	}
	return nil
}

// Load restores a SessionState for commID, or ok=false if never persisted.
func (ss *SessionStore) Load(ctx context.Context, commID string) (*SessionState, bool, error) {
	var pinfo persistedInfo
	pinfo.Memory = chatmemory.New()
	if err := ss.info.Get(ctx, commID, &pinfo); err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading session info %s: %w", commID, err)
	}

	tm := taskmanager.New(commID)
	var raw json.RawMessage
	if err := ss.tasks.Get(ctx, commID, &raw); err == nil {
		if err := json.Unmarshal(raw, tm); err != nil {
			return nil, false, fmt.Errorf("decoding task manager %s: %w", commID, err)
		}
	} else if err != store.ErrNotFound {
		return nil, false, fmt.Errorf("loading task manager %s: %w", commID, err)
	}

	return &SessionState{Info: pinfo.Info, Memory: pinfo.Memory, Tasks: tm}, true, nil
}
