package coordengine

import (
	"context"
	"fmt"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// defaultMaxTeamUpAttempts mirrors the Python default of 3 rounds of
// agent_discovery dialogue when a client's config leaves the knob unset.
const defaultMaxTeamUpAttempts = 3

func agentDiscoveryToolSchema() meshtypes.ToolSchema {
	return meshtypes.ToolSchema{
		Name:        "agent_discovery",
		Description: "Search for teammates matching one or more capability queries.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"queries": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []any{"queries"},
		},
	}
}

func teamUpToolSchema() meshtypes.ToolSchema {
	return meshtypes.ToolSchema{
		Name:        "team_up",
		Description: "Commit to a final team roster and stop discovering further candidates.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"team_members": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []any{"team_members"},
		},
	}
}

// LaunchTeamup forms a new session toward goal, resolving its membership
// either from a caller-supplied roster (agentNames non-empty) or, absent
// one, by an LLM-driven discovery dialogue. The returned SessionState is
// already registered with the Router and persisted locally. skipNaming
// bypasses the nameTeam LLM call, matching the original's skip_naming
// launch-time option.
func (e *Engine) LaunchTeamup(ctx context.Context, goal string, agentNames []string, skipNaming bool) (*SessionState, error) {
	var roster []string
	var err error
	if len(agentNames) > 0 {
		roster, err = e.resolveRosterFromNames(ctx, agentNames)
	} else {
		roster, err = e.discoverRoster(ctx, goal)
	}
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("forming team for goal %q: %w", goal, meshtypes.ErrTeamupFailure)
	}

	teamName := ""
	if !skipNaming {
		teamName = e.nameTeam(ctx, goal, roster)
	}

	resp, err := e.Router.teamup(ctx, e.Self.Name, roster, teamName)
	if err != nil {
		return nil, fmt.Errorf("teamup request: %w", err)
	}
	if len(resp.MemberNames) == 0 {
		return nil, fmt.Errorf("teamup request for goal %q: %w", goal, meshtypes.ErrTeamupFailure)
	}

	teamMembers, err := e.teamMemberMaps(ctx, resp.MemberNames)
	if err != nil {
		return nil, err
	}

	state, err := e.ensureSession(ctx, resp.CommID, teamMembers, goal)
	if err != nil {
		return nil, err
	}
	e.persist(ctx, state)
	return state, nil
}

// resolveRosterFromNames resolves a caller-supplied roster through the
// router's query_assistant endpoint, adding any newly seen entries to the
// local contact book, and always includes the initiator.
func (e *Engine) resolveRosterFromNames(ctx context.Context, agentNames []string) ([]string, error) {
	infos, err := e.Router.queryAssistants(ctx, agentNames)
	if err != nil {
		return nil, fmt.Errorf("resolving roster: %w", err)
	}

	var resolved []meshtypes.AgentInfo
	roster := []string{e.Self.Name}
	for _, info := range infos {
		if info.Name == "" {
			continue // query_assistant returns a zero-value entry for an unknown name
		}
		resolved = append(resolved, info)
		if info.Name != e.Self.Name {
			roster = append(roster, info.Name)
		}
	}
	if _, err := e.Contacts.AddUnseen(ctx, resolved); err != nil {
		return nil, fmt.Errorf("updating contact book: %w", err)
	}
	return roster, nil
}

// discoverRoster runs up to Config.MaxTeamUpAttempts rounds of LLM dialogue
// offering agent_discovery and team_up as tools. The final attempt forces
// tool_choice=team_up so the round always terminates with a roster.
func (e *Engine) discoverRoster(ctx context.Context, goal string) ([]string, error) {
	maxAttempts := e.Config.MaxTeamUpAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxTeamUpAttempts
	}

	known := map[string]bool{e.Self.Name: true}
	roster := []string{e.Self.Name}
	var history []meshtypes.ChatTurn

	prepend := []string{
		personaPrompt(e.Self),
		fmt.Sprintf("Find and assemble a team of collaborators for the goal: %s", goal),
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		last := attempt == maxAttempts-1
		toolChoice := meshtypes.ToolChoiceAuto
		if last {
			toolChoice = meshtypes.ToolChoiceNamed("team_up")
		}

		result, err := e.Gateway.Generate(ctx, prepend, history, nil,
			[]meshtypes.ToolSchema{agentDiscoveryToolSchema(), teamUpToolSchema()},
			toolChoice, meshtypes.ResponseFormatText, e.modelArgs())
		if err != nil {
			return nil, fmt.Errorf("team discovery dialogue: %w", err)
		}

		if done, names := extractTeamUpCall(result); done {
			for _, n := range names {
				if !known[n] {
					known[n] = true
					roster = append(roster, n)
				}
			}
			return roster, nil
		}

		queries := extractDiscoveryQueries(result)
		if len(queries) == 0 {
			continue
		}
		found, err := e.Contacts.Discover(ctx, queries, known, 5)
		if err != nil {
			return nil, fmt.Errorf("searching contact book: %w", err)
		}
		if len(found) == 0 {
			found, err = e.Router.retrieveAssistants(ctx, e.Self.Name, queries)
			if err != nil {
				return nil, fmt.Errorf("retrieving assistants: %w", err)
			}
			if _, err := e.Contacts.AddUnseen(ctx, found); err != nil {
				return nil, fmt.Errorf("updating contact book: %w", err)
			}
		}
		for _, f := range found {
			known[f.Name] = true
		}
		history = append(history, meshtypes.ChatTurn{Role: "user", Content: discoveryResultsPrompt(found)})
	}
	return roster, nil
}

func extractTeamUpCall(result meshtypes.LLMResult) (bool, []string) {
	for _, call := range result.ToolCalls {
		if call.Name != "team_up" {
			continue
		}
		var out teamupDiscoveryOutput
		if err := decodeInto(call.Arguments, &out); err != nil {
			continue
		}
		return true, out.TeamMembers
	}
	return false, nil
}

func extractDiscoveryQueries(result meshtypes.LLMResult) []string {
	for _, call := range result.ToolCalls {
		if call.Name != "agent_discovery" {
			continue
		}
		var out struct {
			Queries []string `json:"queries"`
		}
		if err := decodeInto(call.Arguments, &out); err != nil {
			continue
		}
		return out.Queries
	}
	return nil
}

func discoveryResultsPrompt(found []meshtypes.AgentInfo) string {
	if len(found) == 0 {
		return "agent_discovery found no new candidates."
	}
	msg := "agent_discovery found:"
	for _, f := range found {
		msg += fmt.Sprintf("\n- %s: %s", f.Name, f.Desc)
	}
	return msg
}

// nameTeam asks the LLM for a short team name; a failure or empty roster
// quietly falls back to an unnamed session rather than blocking team-up.
func (e *Engine) nameTeam(ctx context.Context, goal string, roster []string) string {
	if e.Gateway == nil || len(roster) == 0 {
		return ""
	}
	result, err := e.Gateway.Generate(ctx,
		[]string{fmt.Sprintf("Propose a short team name (two or three words, no punctuation) for a team pursuing: %s", goal)},
		nil, nil, nil, meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatText, e.modelArgs())
	if err != nil {
		return ""
	}
	return result.ContentString()
}

// teamMemberMaps resolves names into the []map[string]any shape
// CommunicationInfo.TeamMembers carries on the wire, via the router's
// canonical registry records.
func (e *Engine) teamMemberMaps(ctx context.Context, names []string) ([]map[string]any, error) {
	infos, err := e.Router.queryAssistants(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolving team member records: %w", err)
	}
	out := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		if info.Name == "" {
			continue
		}
		out = append(out, teamMemberMap(info))
	}
	return out, nil
}

func teamMemberMap(info meshtypes.AgentInfo) map[string]any {
	return map[string]any{
		"name": info.Name,
		"desc": info.Desc,
		"type": info.Type.String(),
	}
}
