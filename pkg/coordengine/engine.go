package coordengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmesh/mesh/pkg/chatmemory"
	"github.com/agentmesh/mesh/pkg/connmgr"
	"github.com/agentmesh/mesh/pkg/llmgateway"
	"github.com/agentmesh/mesh/pkg/meshconfig"
	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/observation"
)

// DefaultMaxTeamUpDepth bounds nested team-up recursion when a session's
// config does not specify one, grounded on the teacher's
// multiagent.DefaultMaxHandoffDepth.
const DefaultMaxTeamUpDepth = 3

// Engine is one agent's coordination runtime: it owns exactly one duplex
// connection to the Router and fans incoming messages out across however
// many sessions (SessionState) it is currently a member of.
type Engine struct {
	Self   meshtypes.AgentInfo
	Config meshconfig.CommConfig

	Gateway  *llmgateway.Gateway
	Router   *RouterClient
	Conn     *connmgr.Manager
	Contacts *ContactBook
	Store    *SessionStore
	Obs      observation.Func
	Executor Executor

	mu       sync.Mutex
	sessions map[string]*SessionState
}

// New wires together an already-constructed Gateway, Conn, Contacts, and
// Store into a ready-to-run Engine. Obs and Executor default to the dummy
// observation source and a nil (LLM-produces-conclusion) executor.
func New(self meshtypes.AgentInfo, cfg meshconfig.CommConfig, gateway *llmgateway.Gateway, conn *connmgr.Manager, router *RouterClient, contacts *ContactBook, store *SessionStore) *Engine {
	return &Engine{
		Self:     self,
		Config:   cfg,
		Gateway:  gateway,
		Router:   router,
		Conn:     conn,
		Contacts: contacts,
		Store:    store,
		Obs:      observation.Dummy,
		sessions: make(map[string]*SessionState),
	}
}

// Register announces this engine's agent record to the Router, adopting the
// canonical stored record (e.g. an already-registered Desc/Type) as its own.
func (e *Engine) Register(ctx context.Context) error {
	info, err := e.Router.register(ctx, e.Self)
	if err != nil {
		return fmt.Errorf("registering %s with router: %w", e.Self.Name, err)
	}
	e.Self = info
	return nil
}

func (e *Engine) getSession(commID string) (*SessionState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[commID]
	return s, ok
}

func (e *Engine) putSession(state *SessionState) {
	e.mu.Lock()
	e.sessions[state.Info.CommID] = state
	e.mu.Unlock()
}

// ensureSession returns the in-memory session state for commID, creating it
// lazily (restoring from the store if a prior run persisted it, otherwise a
// fresh CommunicationInfo) on first reference to an unknown session — the
// "created lazily at the client" lifecycle rule from spec.md §3.
func (e *Engine) ensureSession(ctx context.Context, commID string, teamMembers []map[string]any, goal string) (*SessionState, error) {
	if s, ok := e.getSession(commID); ok {
		return s, nil
	}

	if loaded, ok, err := e.Store.Load(ctx, commID); err != nil {
		return nil, err
	} else if ok {
		e.putSession(loaded)
		return loaded, nil
	}

	info := meshtypes.CommunicationInfo{
		CommID:         commID,
		Goal:           goal,
		TeamMembers:    teamMembers,
		State:          meshtypes.Teamup,
		DiscussionOnly: e.Config.DiscussionOnly,
	}
	state := newSessionState(info)
	e.putSession(state)
	return state, nil
}

func (e *Engine) persist(ctx context.Context, state *SessionState) {
	if err := e.Store.Save(ctx, state); err != nil {
		meshlog.ErrorCF("coordengine", "failed persisting session", map[string]any{
			"comm_id": state.Info.CommID, "error": err.Error(),
		})
	}
}

// send serialises and delivers msg over the Router connection. It does not
// touch local memory: callers record their own turn before sending (see
// recordAndSend), and the echo of that turn is skipped by recordIfNotSelf.
func (e *Engine) send(ctx context.Context, msg meshtypes.AgentMessage) error {
	if err := e.Conn.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending message on session %s: %w", msg.CommID, err)
	}
	return nil
}

// recordIfNotSelf appends msg to state's memory unless sender is this
// engine's own name, matching the "messages echoed back to the sender are
// skipped from memory updates" invariant.
func recordIfNotSelf(state *SessionState, selfName string, msg meshtypes.AgentMessage) {
	if msg.Sender == selfName {
		return
	}
	state.Memory.Append(msg.ToLLMResult())
}

// modelArgs renders this engine's configured model parameters into the
// map[string]any shape llmgateway.Gateway.Generate forwards to the
// provider (anthropicprovider reads "max_tokens" and "temperature" out of
// it).
func (e *Engine) modelArgs() map[string]any {
	args := map[string]any{}
	if e.Config.LLM.MaxTokens > 0 {
		args["max_tokens"] = e.Config.LLM.MaxTokens
	}
	if e.Config.LLM.Temperature > 0 {
		args["temperature"] = e.Config.LLM.Temperature
	}
	return args
}

func historyAsChatTurns(history *chatmemory.History, viewerName string) []meshtypes.ChatTurn {
	rendered := history.ToMessages(viewerName)
	turns := make([]meshtypes.ChatTurn, len(rendered))
	for i, m := range rendered {
		turns[i] = meshtypes.ChatTurn{Role: m.Role, Content: m.Content, Name: m.Name}
	}
	return turns
}
