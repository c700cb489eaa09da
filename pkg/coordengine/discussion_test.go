package coordengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mesh/pkg/connmgr"
	"github.com/agentmesh/mesh/pkg/llmgateway"
	"github.com/agentmesh/mesh/pkg/meshconfig"
	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/store"
)

// captureServer upgrades one websocket connection and forwards every frame
// it reads onto a channel, without echoing anything back — enough to let a
// test observe what an Engine actually sent.
func captureServer(t *testing.T) (*httptest.Server, chan meshtypes.AgentMessage) {
	t.Helper()
	sent := make(chan meshtypes.AgentMessage, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			var msg meshtypes.AgentMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			sent <- msg
		}
	}))
	return srv, sent
}

// scriptedProvider is a minimal llmgateway.Provider double returning one
// ProviderResult per call, in order.
type scriptedProvider struct {
	responses []llmgateway.ProviderResult
	calls     int
}

func (p *scriptedProvider) Chat(_ context.Context, _ []meshtypes.ChatTurn, _ []meshtypes.ToolSchema,
	_ meshtypes.ToolChoice, _ meshtypes.ResponseFormat, _ map[string]any) (llmgateway.ProviderResult, error) {
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func newTestEngine(t *testing.T, provider llmgateway.Provider) (*Engine, chan meshtypes.AgentMessage) {
	t.Helper()
	srv, sent := captureServer(t)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := connmgr.Dial(ctx, wsURL, "Alice")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	sessionStore, err := NewSessionStore(context.Background(), s)
	require.NoError(t, err)

	e := New(meshtypes.AgentInfo{Name: "Alice", Type: meshtypes.HumanAssistant}, meshconfig.CommConfig{},
		llmgateway.New(provider), conn, nil, nil, sessionStore)
	return e, sent
}

func testSession(team ...string) *SessionState {
	members := make([]map[string]any, 0, len(team))
	for _, n := range team {
		members = append(members, map[string]any{"name": n})
	}
	return newSessionState(meshtypes.CommunicationInfo{CommID: "c1", Goal: "ship it", TeamMembers: members, State: meshtypes.Discussion})
}

func TestDispatchDiscussionSendsToRecipients(t *testing.T) {
	e, sent := newTestEngine(t, &scriptedProvider{})
	state := testSession("Alice", "Bob")

	err := e.dispatchNextTurnDecision(context.Background(), state, nextTurnOutput{
		Content: "here's my update", MessageType: string(tagDiscussion),
	}, []string{"Bob"})
	require.NoError(t, err)

	msg := <-sent
	assert.Equal(t, "here's my update", msg.Content)
	assert.Equal(t, meshtypes.TypeDiscussion, msg.Type)
	assert.True(t, msg.NextSpeaker.Contains("Bob"))
	assert.Equal(t, 1, state.Memory.Len(), "the author records its own authored turn immediately")
}

func TestDispatchConcludeAddressesSelf(t *testing.T) {
	e, sent := newTestEngine(t, &scriptedProvider{})
	state := testSession("Alice", "Bob")

	err := e.dispatchNextTurnDecision(context.Background(), state, nextTurnOutput{
		Content: "wrapping up", MessageType: string(tagConcludeDiscussion),
	}, []string{"Bob"})
	require.NoError(t, err)

	msg := <-sent
	assert.Equal(t, meshtypes.TypeConcludeDiscussion, msg.Type)
	assert.True(t, msg.NextSpeaker.Contains("Alice"), "conclude always self-addresses so HandleIncoming's echo triggers handleConclude")
}

func TestDispatchAsyncAssignRegistersAssignWait(t *testing.T) {
	e, sent := newTestEngine(t, &scriptedProvider{})
	state := testSession("Alice", "Bob", "Carol")

	err := e.dispatchNextTurnDecision(context.Background(), state, nextTurnOutput{
		Content: "go", MessageType: string(tagAsyncTaskAssign), TaskDesc: "fetch data", TaskAbstract: "fetch",
	}, []string{"Bob", "Carol"})
	require.NoError(t, err)

	msg := <-sent
	assert.Equal(t, meshtypes.TypeAsyncAssign, msg.Type)
	assert.Equal(t, "fetch data", msg.TaskDesc)
	assert.False(t, state.Tasks.AssignWait.Empty(), "both assignees are still outstanding")
}

func TestDispatchPauseWithNoTasksFallsBackToDiscussion(t *testing.T) {
	e, sent := newTestEngine(t, &scriptedProvider{responses: []llmgateway.ProviderResult{
		{Content: `{"selected_task_indices":[]}`, FinishReason: "stop"},
	}})
	state := testSession("Alice", "Bob")

	err := e.dispatchNextTurnDecision(context.Background(), state, nextTurnOutput{
		Content: "nothing to wait on", MessageType: string(tagPause),
	}, []string{"Bob"})
	require.NoError(t, err)

	msg := <-sent
	assert.Equal(t, meshtypes.TypeDiscussion, msg.Type, "no non-terminal tasks means no pause actually activates")
}

func TestHandleIncomingIgnoresMessagesNotAddressedToSelf(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedProvider{})
	msg := meshtypes.AgentMessage{
		Content: "hi", Sender: "Bob", CommID: "c2",
		NextSpeaker: meshtypes.SingleNextSpeaker("Carol"),
		Type:        meshtypes.TypeDiscussion,
		TeamMembers: []map[string]any{{"name": "Alice"}, {"name": "Bob"}, {"name": "Carol"}},
	}
	require.NoError(t, e.HandleIncoming(context.Background(), msg))
}

func TestHandleIncomingRunsNextTurnWhenAddressedToSelf(t *testing.T) {
	e, sent := newTestEngine(t, &scriptedProvider{responses: []llmgateway.ProviderResult{
		{Content: `{"content":"my turn","message_type":"discussion","next_people":"Bob"}`, FinishReason: "stop"},
	}})
	msg := meshtypes.AgentMessage{
		Content: "hi Alice", Sender: "Bob", CommID: "c3",
		NextSpeaker: meshtypes.SingleNextSpeaker("Alice"),
		Type:        meshtypes.TypeDiscussion,
		TeamMembers: []map[string]any{{"name": "Alice"}, {"name": "Bob"}},
	}
	require.NoError(t, e.HandleIncoming(context.Background(), msg))

	out := <-sent
	assert.Equal(t, "my turn", out.Content)
	assert.True(t, out.NextSpeaker.Contains("Bob"))
}
