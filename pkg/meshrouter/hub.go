package meshrouter

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// wireConn wraps a websocket.Conn with a write mutex, grounded on the
// teacher's clientConn in pkg/channels/websocket/channel.go.
type wireConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wireConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wireConn) close() error {
	return c.conn.Close()
}

// hub holds every live agent connection plus the single live observer
// connection (if any), keyed by agent name. Agent and observer sockets never
// time out on ping per the no-deadline policy below: unlike the teacher's
// chat channel, which pings every 30s and drops a client after a 60s silent
// read deadline, a coordination session may sit idle for long stretches
// between turns, so no read/ping deadline is installed here.
type hub struct {
	mu       sync.RWMutex
	agents   map[string]*wireConn
	observer *wireConn
}

func newHub() *hub {
	return &hub{agents: make(map[string]*wireConn)}
}

func (h *hub) registerAgent(name string, conn *websocket.Conn) *wireConn {
	wc := &wireConn{conn: conn}
	h.mu.Lock()
	h.agents[name] = wc
	h.mu.Unlock()
	return wc
}

func (h *hub) removeAgent(name string, wc *wireConn) {
	h.mu.Lock()
	if h.agents[name] == wc {
		delete(h.agents, name)
	}
	h.mu.Unlock()
}

func (h *hub) setObserver(conn *websocket.Conn) *wireConn {
	wc := &wireConn{conn: conn}
	h.mu.Lock()
	h.observer = wc
	h.mu.Unlock()
	return wc
}

func (h *hub) clearObserver(wc *wireConn) {
	h.mu.Lock()
	if h.observer == wc {
		h.observer = nil
	}
	h.mu.Unlock()
}

// sendToAgent delivers v to name if it currently has a live connection. No
// store-and-forward: an absent member simply misses the message.
func (h *hub) sendToAgent(name string, v any) {
	h.mu.RLock()
	wc := h.agents[name]
	h.mu.RUnlock()
	if wc == nil {
		return
	}
	if err := wc.writeJSON(v); err != nil {
		meshlog.WarnCF("meshrouter", "failed delivering to agent, dropping connection", map[string]any{
			"agent": name, "error": err.Error(),
		})
		h.removeAgent(name, wc)
	}
}

// observerEvent is the tagged envelope sent over the observer socket: the
// live teamup-and-message stream.
type observerEvent struct {
	Type      string              `json:"type"`
	CommID    string              `json:"comm_id,omitempty"`
	Members   []string            `json:"member_names,omitempty"`
	Message   *meshtypes.AgentMessage `json:"message,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func (h *hub) emitObserver(event observerEvent) {
	h.mu.RLock()
	wc := h.observer
	h.mu.RUnlock()
	if wc == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := wc.writeJSON(event); err != nil {
		meshlog.WarnCF("meshrouter", "failed delivering to observer", map[string]any{"error": err.Error()})
		h.clearObserver(wc)
	}
}
