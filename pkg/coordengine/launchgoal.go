package coordengine

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

const conclusionPollInterval = 5 * time.Second

// LaunchGoalOptions carries the full /launch_goal request surface: Goal and
// TeamMemberNames (or CommID, for a continuation) are the only fields a
// caller typically sets; the rest default to "use the session/engine
// default" at their zero value.
type LaunchGoalOptions struct {
	Goal            string
	TeamMemberNames []string

	// CommID and ContInput resume an existing session instead of forming a
	// new one; Goal/TeamMemberNames are ignored when CommID is set.
	CommID    string
	ContInput string

	// TeamUpDepth seeds the nested-team-up recursion budget for a freshly
	// formed session; nil leaves it unset, so maybeExecute falls back to
	// DefaultMaxTeamUpDepth.
	TeamUpDepth                    *int
	IsCollaborativePlanningEnabled bool
	MaxTurns                       *int
	ObsKwargs                      map[string]any

	// SkipNaming bypasses the nameTeam LLM call for a freshly formed
	// session's roster.
	SkipNaming bool
}

// LaunchGoal forms (or resumes) a session toward opts.Goal and blocks until
// its CommunicationInfo.conclusion is set, returning (comm_id,
// conclusion_text). Passing a non-empty opts.CommID resumes an existing
// session as a continuation: any prior conclusion is cleared and, if
// opts.ContInput is non-empty, a new message is injected choosing a random
// next speaker before the poll resumes.
func (e *Engine) LaunchGoal(ctx context.Context, opts LaunchGoalOptions) (string, string, error) {
	var state *SessionState
	var err error
	fresh := opts.CommID == ""

	if fresh {
		state, err = e.LaunchTeamup(ctx, opts.Goal, opts.TeamMemberNames, opts.SkipNaming)
	} else {
		state, err = e.resumeSession(ctx, opts.CommID, opts.ContInput)
	}
	if err != nil {
		return "", "", err
	}

	if fresh {
		state.mu.Lock()
		state.Info.TeamUpDepth = opts.TeamUpDepth
		state.Info.IsCollaborativePlanningEnabled = opts.IsCollaborativePlanningEnabled
		state.Info.MaxTurns = opts.MaxTurns
		state.Info.ObsKwargs = opts.ObsKwargs
		state.mu.Unlock()

		if err := e.openDiscussion(ctx, state, opts.Goal); err != nil {
			return "", "", err
		}
	}

	return e.pollForConclusion(ctx, state)
}

// resumeSession restores (from memory or the store) the session for commID,
// clears any prior conclusion, and optionally injects a continuation
// message addressed to a randomly chosen teammate.
func (e *Engine) resumeSession(ctx context.Context, commID, contInput string) (*SessionState, error) {
	state, ok := e.getSession(commID)
	if !ok {
		loaded, found, err := e.Store.Load(ctx, commID)
		if err != nil {
			return nil, fmt.Errorf("resuming session %s: %w", commID, err)
		}
		if !found {
			return nil, fmt.Errorf("resuming session %s: %w", commID, meshtypes.ErrUnknownSession)
		}
		state = loaded
		e.putSession(state)
	}

	state.mu.Lock()
	state.Info.Conclusion = nil
	state.mu.Unlock()

	if contInput == "" {
		return state, nil
	}
	next := randomMember(state.Info.MemberNames(), e.Self.Name)
	msg := e.buildMessage(state, meshtypes.TypeDiscussion, contInput, []string{next})
	if err := e.recordAndSend(ctx, state, msg); err != nil {
		return nil, err
	}
	return state, nil
}

// openDiscussion sends the first message of a freshly team-up'd session,
// the one carrying Goal/TeamMembers inline per the wire contract, addressed
// to this engine itself so the ordinary next-turn machinery in HandleIncoming
// takes over once the router echoes it back.
func (e *Engine) openDiscussion(ctx context.Context, state *SessionState, goal string) error {
	state.mu.Lock()
	state.Info.State = meshtypes.Discussion
	state.mu.Unlock()

	msg := e.buildMessage(state, meshtypes.TypeDiscussion, fmt.Sprintf("Team formed. Goal: %s", goal), []string{e.Self.Name})
	msg.Goal = goal
	msg.TeamMembers = state.Info.TeamMembers
	return e.recordAndSend(ctx, state, msg)
}

func (e *Engine) pollForConclusion(ctx context.Context, state *SessionState) (string, string, error) {
	ticker := time.NewTicker(conclusionPollInterval)
	defer ticker.Stop()
	for {
		state.mu.Lock()
		conclusion := state.Info.Conclusion
		state.mu.Unlock()
		if conclusion != nil {
			return state.Info.CommID, *conclusion, nil
		}
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// maybeExecute is the nested-team-up-aware replacement for a direct
// runExecutor call: when Config.SupportNestedTeams is set and depth budget
// remains, it asks the LLM whether the rephrased task calls for solo
// execution or a fresh sub-team, recursing into LaunchGoal on the latter.
// Each recursive call spins a brand new session/comm_id rather than
// threading through a long-lived agent-to-agent chain, so the depth bound
// alone (grounded on the teacher's DefaultMaxHandoffDepth) is a sufficient
// cycle guard — there is no shared Visited chain to thread through.
func (e *Engine) maybeExecute(ctx context.Context, state *SessionState, brief string) (string, error) {
	if !e.Config.SupportNestedTeams {
		return e.runExecutor(ctx, brief)
	}

	depth := DefaultMaxTeamUpDepth
	if state.Info.TeamUpDepth != nil {
		depth = *state.Info.TeamUpDepth
	}
	if depth <= 0 {
		return e.runExecutor(ctx, brief)
	}

	teamwork, err := e.decideIndividualOrTeamwork(ctx, brief)
	if err != nil {
		return "", err
	}
	if !teamwork {
		return e.runExecutor(ctx, brief)
	}

	nextDepth := depth - 1
	_, conclusion, err := e.launchNestedGoal(ctx, brief, nextDepth)
	if err != nil {
		return "", fmt.Errorf("nested team-up: %w", err)
	}
	return conclusion, nil
}

// decideIndividualOrTeamwork asks the LLM to choose between handling the
// rephrased task alone or recursing into a fresh sub-team, given the local
// contact book's current size as a proxy for "collaborators are known to be
// available".
func (e *Engine) decideIndividualOrTeamwork(ctx context.Context, brief string) (bool, error) {
	prompt := fmt.Sprintf(
		"Given the task below and your known contact book, respond with strict JSON "+
			`{"choice": "individual"|"teamwork"}.`+"\nTask: %s", brief)
	result, err := e.Gateway.Generate(ctx, []string{personaPrompt(e.Self), prompt}, nil, nil, nil,
		meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatJSONObject, e.modelArgs())
	if err != nil {
		return false, fmt.Errorf("individual-vs-teamwork decision: %w", err)
	}
	var out struct {
		Choice string `json:"choice"`
	}
	if err := decodeInto(result.Content, &out); err != nil {
		return false, fmt.Errorf("%w: decoding individual-vs-teamwork decision: %v", meshtypes.ErrSchemaViolation, err)
	}
	return out.Choice == "teamwork", nil
}

// launchNestedGoal runs a fresh team-up for goal, tagging the new session
// with the decremented depth before it opens discussion, then polls it to
// completion exactly like LaunchGoal. Naming is always skipped for a nested
// sub-team: it is an internal recursion, not a roster a human ever sees.
func (e *Engine) launchNestedGoal(ctx context.Context, goal string, depth int) (string, string, error) {
	state, err := e.LaunchTeamup(ctx, goal, nil, true)
	if err != nil {
		return "", "", err
	}
	state.mu.Lock()
	state.Info.TeamUpDepth = &depth
	state.mu.Unlock()

	if err := e.openDiscussion(ctx, state, goal); err != nil {
		return "", "", err
	}
	return e.pollForConclusion(ctx, state)
}
