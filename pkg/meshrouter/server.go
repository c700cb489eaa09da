// Package meshrouter is the Registry/Router Service: the one central
// process agents register with, discover each other through, form sessions
// with, and relay turn-by-turn messages through. Built the way the
// teacher's pkg/channels/websocket/channel.go builds its chat channel:
// net/http ServeMux, a gorilla/websocket Upgrader, one map of live
// connections guarded by a mutex. Registrations, sessions, and chat
// records persist via pkg/store; capability discovery is backed by
// pkg/vectordir's global agent_registry collection, replacing the
// teacher's pkg/swarm/registry.go NATS transport with direct in-process
// calls since this system has no message bus.
package meshrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// Server is the Registry/Router HTTP + WebSocket service.
type Server struct {
	registry *Registry
	sessions *SessionStore
	hub      *hub
	upgrader websocket.Upgrader
	http     *http.Server
}

func NewServer(addr string, registry *Registry, sessions *SessionStore) *Server {
	s := &Server{
		registry: registry,
		sessions: sessions,
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /retrieve_assistant", s.handleRetrieveAssistant)
	mux.HandleFunc("POST /query_assistant", s.handleQueryAssistant)
	mux.HandleFunc("POST /teamup", s.handleTeamup)
	mux.HandleFunc("GET /list_all_agents", s.handleListAllAgents)
	mux.HandleFunc("POST /fetch_chat_record", s.handleFetchChatRecord)
	mux.HandleFunc("GET /ws/{agent_name}", s.handleAgentSocket)
	mux.HandleFunc("GET /chatlist_ws", s.handleObserverSocket)
	mux.HandleFunc("GET /health_check", s.handleHealthCheck)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start begins serving and blocks the caller in a goroutine, returning once
// the listener is confirmed up or has failed immediately.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("starting router: %w", err)
	case <-time.After(100 * time.Millisecond):
		meshlog.InfoCF("meshrouter", "router started", map[string]any{"address": s.http.Addr})
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var info meshtypes.AgentInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding AgentInfo: %w", err))
		return
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	if err := s.registry.Register(r.Context(), info); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	registered, _, err := s.registry.Get(r.Context(), info.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, registered)
}

type retrieveAssistantRequest struct {
	Sender       string   `json:"sender"`
	Capabilities []string `json:"capabilities"`
	TopK         int      `json:"top_k,omitempty"`
}

func (s *Server) handleRetrieveAssistant(w http.ResponseWriter, r *http.Request) {
	var req retrieveAssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding retrieve_assistant request: %w", err))
		return
	}
	hits, err := s.registry.RetrieveAssistants(r.Context(), req.Sender, req.Capabilities, req.TopK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// handleQueryAssistant accepts either a bare JSON string (one name) or a
// JSON array of strings, returning the matching shape back: a single
// AgentInfo or an ordered list (with zero-value entries for unknown names).
func (s *Server) handleQueryAssistant(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeRawBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		info, ok, err := s.registry.Get(r.Context(), single)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, info)
		return
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("query_assistant expects a string or array of strings: %w", err))
		return
	}
	results, err := s.registry.Query(r.Context(), names)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type teamupRequest struct {
	Sender     string   `json:"sender"`
	AgentNames []string `json:"agent_names"`
	TeamName   string   `json:"team_name,omitempty"`
}

type teamupResponse struct {
	CommID      string   `json:"comm_id"`
	MemberNames []string `json:"member_names"`
}

func (s *Server) handleTeamup(w http.ResponseWriter, r *http.Request) {
	var req teamupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding teamup request: %w", err))
		return
	}

	members := unionWithSender(req.Sender, req.AgentNames)
	session, err := s.sessions.CreateSession(r.Context(), members, req.TeamName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.hub.emitObserver(observerEvent{Type: "teamup", CommID: session.CommID, Members: session.MemberNames})
	writeJSON(w, http.StatusOK, teamupResponse{CommID: session.CommID, MemberNames: session.MemberNames})
}

func unionWithSender(sender string, names []string) []string {
	seen := map[string]bool{sender: true}
	out := []string{sender}
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func (s *Server) handleListAllAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.registry.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// handleFetchChatRecord accepts a comm_id string, an array of comm_ids, or
// null (meaning: every archived record).
func (s *Server) handleFetchChatRecord(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeRawBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var commIDs []string
	if len(raw) == 0 || string(raw) == "null" {
		commIDs = nil
	} else if err := json.Unmarshal(raw, &commIDs); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("fetch_chat_record expects a comm_id, array of comm_ids, or null: %w", err))
			return
		}
		commIDs = []string{single}
	}

	records, err := s.sessions.FetchChatRecords(r.Context(), commIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func decodeRawBody(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}
	return raw, nil
}
