package coordengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// RouterClient calls the Registry/Router Service's REST endpoints; the
// duplex message stream itself runs over pkg/connmgr, not this client.
type RouterClient struct {
	baseURL string
	client  *http.Client
}

func NewRouterClient(routerURL string) *RouterClient {
	return &RouterClient{
		baseURL: httpBaseURL(routerURL),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// httpBaseURL rewrites a ws(s):// router URL (as used for the duplex
// socket) into the http(s):// base the REST endpoints live under.
func httpBaseURL(routerURL string) string {
	switch {
	case strings.HasPrefix(routerURL, "wss://"):
		return "https://" + strings.TrimPrefix(routerURL, "wss://")
	case strings.HasPrefix(routerURL, "ws://"):
		return "http://" + strings.TrimPrefix(routerURL, "ws://")
	default:
		return routerURL
	}
}

func (c *RouterClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: calling %s: %v", meshtypes.ErrTransientTransport, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RouterClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: calling %s: %v", meshtypes.ErrTransientTransport, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// register posts info to the router and returns the canonical stored
// record — identical to info for a first registration, but the original
// record's fields when this name was already registered.
func (c *RouterClient) register(ctx context.Context, info meshtypes.AgentInfo) (meshtypes.AgentInfo, error) {
	var out meshtypes.AgentInfo
	if err := c.post(ctx, "/register", info, &out); err != nil {
		return meshtypes.AgentInfo{}, err
	}
	return out, nil
}

type teamupRequestBody struct {
	Sender     string   `json:"sender"`
	AgentNames []string `json:"agent_names"`
	TeamName   string   `json:"team_name,omitempty"`
}

type teamupResponseBody struct {
	CommID      string   `json:"comm_id"`
	MemberNames []string `json:"member_names"`
}

func (c *RouterClient) teamup(ctx context.Context, sender string, agentNames []string, teamName string) (teamupResponseBody, error) {
	var out teamupResponseBody
	err := c.post(ctx, "/teamup", teamupRequestBody{Sender: sender, AgentNames: agentNames, TeamName: teamName}, &out)
	return out, err
}

func (c *RouterClient) queryAssistants(ctx context.Context, names []string) ([]meshtypes.AgentInfo, error) {
	var out []meshtypes.AgentInfo
	if err := c.post(ctx, "/query_assistant", names, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RouterClient) retrieveAssistants(ctx context.Context, sender string, capabilities []string) ([]meshtypes.AgentInfo, error) {
	var out []meshtypes.AgentInfo
	body := map[string]any{"sender": sender, "capabilities": capabilities}
	if err := c.post(ctx, "/retrieve_assistant", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RouterClient) fetchChatRecords(ctx context.Context, commIDs []string) ([]meshtypes.ChatRecord, error) {
	var out []meshtypes.ChatRecord
	if err := c.post(ctx, "/fetch_chat_record", commIDs, &out); err != nil {
		return nil, err
	}
	return out, nil
}
