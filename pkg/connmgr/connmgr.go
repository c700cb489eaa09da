// Package connmgr is the agent-side Connection Manager: a single persistent
// websocket connection to the Router with automatic reconnect and a
// write-mutex wrapped Conn, grounded on the client half of the teacher's
// pkg/channels/websocket/channel.go (clientConn write-mutex, ping ticker,
// read-loop goroutine feeding a message channel).
package connmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

const (
	maxReconnectAttempts = 3
	reconnectBackoff     = 3 * time.Second
)

// Manager owns one websocket connection to the router for a single named
// agent, reconnecting transparently on send/receive failure.
type Manager struct {
	routerURL string
	agentName string

	mu      sync.Mutex
	conn    *websocket.Conn
	inbound chan meshtypes.AgentMessage
	done    chan struct{}
}

// Dial connects to routerURL's agent socket for agentName and starts the
// background read loop feeding Receive.
func Dial(ctx context.Context, routerURL, agentName string) (*Manager, error) {
	m := &Manager{
		routerURL: routerURL,
		agentName: agentName,
		inbound:   make(chan meshtypes.AgentMessage, 64),
		done:      make(chan struct{}),
	}
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	go m.readLoop()
	return m, nil
}

func (m *Manager) connect(ctx context.Context) error {
	u, err := url.Parse(m.routerURL)
	if err != nil {
		return fmt.Errorf("parsing router url: %w", err)
	}
	u.Path = fmt.Sprintf("/ws/%s", meshtypes.SanitizeName(m.agentName))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: dialing router: %v", meshtypes.ErrTransientTransport, err)
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return nil
}

func (m *Manager) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		if err := m.connect(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
	return fmt.Errorf("%w: exhausted reconnect attempts: %v", meshtypes.ErrTransientTransport, lastErr)
}

func (m *Manager) readLoop() {
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.done:
				return
			default:
			}
			if rerr := m.reconnect(context.Background()); rerr != nil {
				meshlog.ErrorCF("connmgr", "giving up reconnecting", map[string]any{"agent": m.agentName, "error": rerr.Error()})
				return
			}
			continue
		}

		var msg meshtypes.AgentMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			meshlog.WarnCF("connmgr", "dropping unparseable message", map[string]any{"agent": m.agentName, "error": err.Error()})
			continue
		}
		m.inbound <- msg
	}
}

// Send serialises msg to JSON and writes it, retrying the connection on
// failure per the reconnect policy.
func (m *Manager) Send(ctx context.Context, msg meshtypes.AgentMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding agent message: %w", err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: no active connection", meshtypes.ErrTransientTransport)
	}

	m.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.mu.Unlock()
	if err == nil {
		return nil
	}

	if rerr := m.reconnect(ctx); rerr != nil {
		return rerr
	}
	m.mu.Lock()
	conn = m.conn
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", meshtypes.ErrTransientTransport, err)
	}
	return nil
}

// Receive returns the next parsed AgentMessage, blocking until one arrives
// or ctx is cancelled.
func (m *Manager) Receive(ctx context.Context) (meshtypes.AgentMessage, error) {
	select {
	case msg := <-m.inbound:
		return msg, nil
	case <-ctx.Done():
		return meshtypes.AgentMessage{}, ctx.Err()
	}
}

// Close shuts down the read loop and closes the connection.
func (m *Manager) Close() error {
	close(m.done)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
