package meshrouter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// handleAgentSocket upgrades an agent's connection and runs the routing
// loop: every inbound frame is validated, appended to its session's chat
// record, emitted to the observer, and fanned out to every currently-live
// member of the session (including the sender), per the five-step routing
// algorithm. No ping/pong deadline is installed; a dropped TCP connection
// surfaces as a read error and removes the mapping, after which the same
// agent name may reconnect and resume.
func (s *Server) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("agent_name")
	if name == "" {
		http.Error(w, "agent_name is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		meshlog.ErrorCF("meshrouter", "agent socket upgrade failed", map[string]any{"agent": name, "error": err.Error()})
		return
	}

	wc := s.hub.registerAgent(name, conn)
	meshlog.InfoCF("meshrouter", "agent connected", map[string]any{"agent": name})
	defer func() {
		s.hub.removeAgent(name, wc)
		wc.close()
		meshlog.InfoCF("meshrouter", "agent disconnected", map[string]any{"agent": name})
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.route(r.Context(), data)
	}
}

// route implements the routing algorithm for one inbound frame.
func (s *Server) route(ctx context.Context, data []byte) {
	var msg meshtypes.AgentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		meshlog.WarnCF("meshrouter", "dropping unparseable agent message", map[string]any{"error": err.Error()})
		return
	}

	session, ok, err := s.sessions.GetSession(ctx, msg.CommID)
	if err != nil {
		meshlog.ErrorCF("meshrouter", "session lookup failed", map[string]any{"comm_id": msg.CommID, "error": err.Error()})
		return
	}
	if !ok {
		meshlog.WarnCF("meshrouter", "dropping message for unknown session", map[string]any{"comm_id": msg.CommID})
		return
	}

	if err := s.sessions.AppendMessage(ctx, msg.CommID, msg); err != nil {
		meshlog.ErrorCF("meshrouter", "failed appending to chat record", map[string]any{"comm_id": msg.CommID, "error": err.Error()})
		return
	}

	s.hub.emitObserver(observerEvent{Type: "message", CommID: msg.CommID, Message: &msg})

	for _, member := range session.MemberNames {
		s.hub.sendToAgent(member, msg)
	}
}

// handleObserverSocket upgrades the single frontend observer connection.
// Only one observer is tracked at a time; a new connection replaces the
// previous one, matching the teacher's last-writer-wins reconnection
// policy for the agent sockets.
func (s *Server) handleObserverSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		meshlog.ErrorCF("meshrouter", "observer socket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	wc := s.hub.setObserver(conn)
	meshlog.InfoCF("meshrouter", "observer connected", nil)
	defer func() {
		s.hub.clearObserver(wc)
		wc.close()
		meshlog.InfoCF("meshrouter", "observer disconnected", nil)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
