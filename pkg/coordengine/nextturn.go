package coordengine

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func maxTurnsOrDefault(info meshtypes.CommunicationInfo) int {
	if info.MaxTurns == nil || *info.MaxTurns <= 0 {
		return 0
	}
	return *info.MaxTurns
}

// generateNextTurn runs the next-turn LLM call and returns its validated
// output together with the normalised, team-filtered recipient list. On
// update_plan=true it also makes the dedicated second LLM call and appends
// the revision to the task manager's plan log before returning.
func (e *Engine) generateNextTurn(ctx context.Context, state *SessionState) (nextTurnOutput, []string, error) {
	forceConclude := false
	if max := maxTurnsOrDefault(state.Info); max > 0 && state.Info.CurrTurn >= max {
		forceConclude = true
	}

	prepend := []string{
		personaPrompt(e.Self),
		multiAgentRulesPrompt,
		coordinationPrompt(state.Info),
		state.Tasks.TasksView(),
	}
	if state.Info.IsCollaborativePlanningEnabled {
		prepend = append(prepend, planPrompt(state.Tasks))
	}
	if e.Obs != nil {
		obs, err := e.Obs.Observe(ctx, state.Info.ObsKwargs)
		if err != nil {
			return nextTurnOutput{}, nil, fmt.Errorf("observation adapter: %w", err)
		}
		if p := observationPrompt(obs); p != "" {
			prepend = append(prepend, p)
		}
	}

	history := historyAsChatTurns(state.Memory, e.Self.Name)

	result, err := e.Gateway.Generate(ctx, prepend, history, []string{nextTurnAppendPrompt(forceConclude, state.Info.DiscussionOnly)},
		nil, meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatJSONObject, e.modelArgs())
	if err != nil {
		return nextTurnOutput{}, nil, fmt.Errorf("next-turn decision: %w", err)
	}

	var out nextTurnOutput
	if err := decodeInto(result.Content, &out); err != nil {
		return nextTurnOutput{}, nil, fmt.Errorf("%w: decoding next-turn output: %v", meshtypes.ErrSchemaViolation, err)
	}
	if forceConclude {
		out.MessageType = string(tagConcludeDiscussion)
	}

	recipients := normalizeNextPeople(out.NextPeople, state.Info.MemberNames(), e.Self.Name)
	if out.MessageType == string(tagConcludeDiscussion) {
		recipients = []string{e.Self.Name}
	}

	if out.UpdatePlan {
		updated, err := e.generateUpdatedPlan(ctx, state, out)
		if err != nil {
			return nextTurnOutput{}, nil, err
		}
		state.Tasks.UpdatePlan(updated)
	}

	return out, recipients, nil
}

// normalizeNextPeople coerces the duck-typed next_people field (a bare
// string or a list, as decoded from JSON into `any`) into a team-filtered,
// non-empty list; a selection with nothing left standing defaults to self.
func normalizeNextPeople(raw any, team []string, self string) []string {
	var names []string
	switch v := raw.(type) {
	case string:
		if v != "" {
			names = []string{v}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				names = append(names, s)
			}
		}
	case []string:
		names = v
	}

	allowed := make(map[string]bool, len(team)+1)
	for _, n := range team {
		allowed[n] = true
	}
	allowed[self] = true

	var filtered []string
	for _, n := range names {
		if allowed[n] {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		return []string{self}
	}
	return filtered
}

// generateUpdatedPlan makes the dedicated second LLM call the
// "update_plan=true" rule requires.
func (e *Engine) generateUpdatedPlan(ctx context.Context, state *SessionState, out nextTurnOutput) (string, error) {
	prepend := []string{
		personaPrompt(e.Self),
		fmt.Sprintf("Revise the collaborative plan given this thought: %s", out.ThoughtOnPlan),
		planPrompt(state.Tasks),
	}
	result, err := e.Gateway.Generate(ctx, prepend, nil, nil, nil,
		meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatText, e.modelArgs())
	if err != nil {
		return "", fmt.Errorf("updating collaborative plan: %w", err)
	}
	return result.ContentString(), nil
}

// generatePauseSelection issues the dedicated pause-selection LLM call and
// applies its result via SetTriggers, returning whether a wait was actually
// activated and the resolved task ids.
func (e *Engine) generatePauseSelection(ctx context.Context, state *SessionState) (activated bool, ids []string, err error) {
	nonTerminal := state.Tasks.TasksByStatus(meshtypes.ToStart, meshtypes.InProgress)
	if len(nonTerminal) == 0 {
		return false, nil, nil
	}

	result, genErr := e.Gateway.Generate(ctx,
		[]string{personaPrompt(e.Self), pauseSelectionPrompt(nonTerminal)},
		nil, nil, nil, meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatJSONObject, e.modelArgs())
	if genErr != nil {
		return false, nil, fmt.Errorf("pause selection: %w", genErr)
	}

	var sel pauseOutput
	if err := decodeInto(result.Content, &sel); err != nil {
		return false, nil, fmt.Errorf("%w: decoding pause selection: %v", meshtypes.ErrSchemaViolation, err)
	}

	activated, ids = state.Tasks.SetTriggers(sel.SelectedTaskIndices, e.Self.Name)
	return activated, ids, nil
}

// randomMember picks a uniformly random team member other than exclude, or
// exclude itself if no other member exists — used by LaunchGoal's
// continuation path to choose the next speaker for an injected message.
func randomMember(team []string, exclude string) string {
	var candidates []string
	for _, n := range team {
		if n != exclude {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return exclude
	}
	return candidates[rand.Intn(len(candidates))]
}
