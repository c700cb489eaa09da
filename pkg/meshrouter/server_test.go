package meshrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/store"
	"github.com/agentmesh/mesh/pkg/vectordir"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 8)
		for j := 0; j < 8 && j < len(t); j++ {
			v[j] = float32(t[j])
		}
		out[i] = v
	}
	return out, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	vdir, err := vectordir.Open(filepath.Join(dir, "vectors"), "agent_registry", fakeEmbedder{})
	require.NoError(t, err)

	registry, err := NewRegistry(context.Background(), s, vdir)
	require.NoError(t, err)

	sessions, err := NewSessionStore(context.Background(), s)
	require.NoError(t, err)

	return NewServer("127.0.0.1:0", registry, sessions)
}

func TestRegisterIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	body, _ := json.Marshal(meshtypes.AgentInfo{Name: "AgentA", Desc: "does research"})
	resp1, err := http.Post(ts.URL+"/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp1.Body.Close()
	assert.Equal(t, http.StatusOK, resp1.StatusCode)

	body2, _ := json.Marshal(meshtypes.AgentInfo{Name: "AgentA", Desc: "a different description"})
	resp2, err := http.Post(ts.URL+"/register", "application/json", bytes.NewReader(body2))
	require.NoError(t, err)
	defer resp2.Body.Close()

	var info meshtypes.AgentInfo
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&info))
	assert.Equal(t, "does research", info.Desc, "re-registration must not overwrite the original record")
}

func TestTeamupCreatesSessionIncludingSender(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	body, _ := json.Marshal(teamupRequest{Sender: "AgentA", AgentNames: []string{"AgentB", "AgentC"}})
	resp, err := http.Post(ts.URL+"/teamup", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out teamupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.CommID)
	assert.ElementsMatch(t, []string{"AgentA", "AgentB", "AgentC"}, out.MemberNames)
}

func TestListAllAgents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	body, _ := json.Marshal(meshtypes.AgentInfo{Name: "AgentA", Desc: "x"})
	http.Post(ts.URL+"/register", "application/json", bytes.NewReader(body))

	resp, err := http.Get(ts.URL + "/list_all_agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	var agents []meshtypes.AgentInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agents))
	assert.Len(t, agents, 1)
	assert.Equal(t, "AgentA", agents[0].Name)
}

func TestQueryAssistantSingleAndList(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	body, _ := json.Marshal(meshtypes.AgentInfo{Name: "AgentA", Desc: "x"})
	http.Post(ts.URL+"/register", "application/json", bytes.NewReader(body))

	resp, err := http.Post(ts.URL+"/query_assistant", "application/json", strings.NewReader(`"AgentA"`))
	require.NoError(t, err)
	defer resp.Body.Close()
	var info meshtypes.AgentInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "AgentA", info.Name)

	resp2, err := http.Post(ts.URL+"/query_assistant", "application/json", strings.NewReader(`["AgentA","Unknown"]`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	var list []meshtypes.AgentInfo
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "AgentA", list[0].Name)
	assert.Equal(t, "", list[1].Name, "unknown name preserves its slot with a zero value")
}

func TestRoutingFansOutToLiveMembersOnly(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()
	wsBase := "ws" + strings.TrimPrefix(ts.URL, "http")

	body, _ := json.Marshal(teamupRequest{Sender: "AgentA", AgentNames: []string{"AgentB"}})
	resp, err := http.Post(ts.URL+"/teamup", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var session teamupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	resp.Body.Close()

	connA, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws/AgentA", nil)
	require.NoError(t, err)
	defer connA.Close()
	// AgentB never connects: it must simply miss the message (no store-and-forward).

	time.Sleep(50 * time.Millisecond)

	msg := meshtypes.AgentMessage{Content: "hello team", Sender: "AgentA", CommID: session.CommID}
	data, _ := json.Marshal(msg)
	require.NoError(t, connA.WriteMessage(websocket.TextMessage, data))

	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := connA.ReadMessage()
	require.NoError(t, err, "sender itself must also receive the routed message")
	var echoed meshtypes.AgentMessage
	require.NoError(t, json.Unmarshal(got, &echoed))
	assert.Equal(t, "hello team", echoed.Content)

	records, err := srv.sessions.FetchChatRecords(context.Background(), []string{session.CommID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Messages, 1)
	assert.Equal(t, "hello team", records[0].Messages[0].Content)
}

func TestMessageForUnknownSessionIsDropped(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()
	wsBase := "ws" + strings.TrimPrefix(ts.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws/AgentA", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := meshtypes.AgentMessage{Content: "orphan", Sender: "AgentA", CommID: "does-not-exist"}
	data, _ := json.Marshal(msg)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	records, err := srv.sessions.FetchChatRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records, "a message for an unknown session must never be archived")
}
