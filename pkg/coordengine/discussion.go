package coordengine

import (
	"context"
	"fmt"

	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// HandleIncoming is the single entry point for a message arriving over the
// Connection Manager: it locates (lazily creating, if this is the first
// message after team-up) the session, records it, updates the task manager,
// and — only if addressed to this agent — dispatches by type. Memory and
// the task manager are each independently thread-safe; SessionState.mu
// guards only the memory append and turn increment in recordAndSend, and
// the send itself runs after that lock is released.
func (e *Engine) HandleIncoming(ctx context.Context, msg meshtypes.AgentMessage) error {
	state, err := e.ensureSession(ctx, msg.CommID, msg.TeamMembers, msg.Goal)
	if err != nil {
		return fmt.Errorf("handling message for session %s: %w", msg.CommID, err)
	}

	recordIfNotSelf(state, e.Self.Name, msg)
	e.applyTaskUpdateFromMessage(state, msg)

	if !msg.NextSpeaker.Contains(e.Self.Name) {
		return nil
	}

	switch msg.Type {
	case meshtypes.TypeDiscussion, meshtypes.TypeInformProgress, meshtypes.TypeInformResult:
		if msg.Type == meshtypes.TypeInformProgress || msg.Type == meshtypes.TypeInformResult {
			state.Tasks.AssignWait.Mark(msg.Sender)
			if !state.Tasks.AssignWait.Empty() {
				return nil
			}
		}
		return e.runNextTurn(ctx, state)
	case meshtypes.TypeAsyncAssign:
		return e.handleAsyncAssign(ctx, state, msg)
	case meshtypes.TypeSyncAssign:
		return e.handleSyncAssign(ctx, state, msg)
	case meshtypes.TypeConcludeDiscussion:
		return e.handleConclude(ctx, state, msg)
	default:
		return nil
	}
}

// applyTaskUpdateFromMessage binds the task-manager side effects an
// AssignAssign/Inform message carries, keyed by the stable hash of the
// message's own memory-log form so a later rephrasing stage can recover the
// completed task's conclusion from the message that reported it.
func (e *Engine) applyTaskUpdateFromMessage(state *SessionState, msg meshtypes.AgentMessage) {
	if msg.TaskID == "" {
		return
	}
	status, ok := taskStatusForMessageType(msg.Type)
	if !ok {
		return
	}
	key := messageKey(msg.ToLLMResult())
	state.Tasks.UpdateTask(msg.TaskID, msg.TaskDesc, msg.TaskAbstract, msg.Sender, status, msg.TaskConclusion, key)
}

func taskStatusForMessageType(t meshtypes.CommunicationType) (meshtypes.TaskStatus, bool) {
	switch t {
	case meshtypes.TypeAsyncAssign, meshtypes.TypeSyncAssign:
		return meshtypes.ToStart, true
	case meshtypes.TypeInformProgress:
		return meshtypes.InProgress, true
	case meshtypes.TypeInformResult:
		return meshtypes.Completed, true
	default:
		return 0, false
	}
}

// runNextTurn runs the next-turn LLM call and dispatches its decision.
func (e *Engine) runNextTurn(ctx context.Context, state *SessionState) error {
	out, recipients, err := e.generateNextTurn(ctx, state)
	if err != nil {
		return err
	}
	return e.dispatchNextTurnDecision(ctx, state, out, recipients)
}

func (e *Engine) dispatchNextTurnDecision(ctx context.Context, state *SessionState, out nextTurnOutput, recipients []string) error {
	switch messageTypeTag(out.MessageType) {
	case tagPause:
		activated, ids, err := e.generatePauseSelection(ctx, state)
		if err != nil {
			return err
		}
		if !activated {
			msg := e.buildMessage(state, meshtypes.TypeDiscussion, out.Content, []string{e.Self.Name})
			return e.recordAndSend(ctx, state, msg)
		}
		msg := e.buildMessage(state, meshtypes.TypePause, out.Content, []string{e.Self.Name})
		msg.Triggers = ids
		return e.recordAndSend(ctx, state, msg)

	case tagConcludeDiscussion:
		msg := e.buildMessage(state, meshtypes.TypeConcludeDiscussion, out.Content, []string{e.Self.Name})
		return e.recordAndSend(ctx, state, msg)

	case tagAsyncTaskAssign, tagSyncTaskAssign:
		msgType := meshtypes.TypeAsyncAssign
		if messageTypeTag(out.MessageType) == tagSyncTaskAssign {
			msgType = meshtypes.TypeSyncAssign
		}
		state.Tasks.AssignWait.Register(recipients)
		msg := e.buildMessage(state, msgType, out.Content, recipients)
		msg.TaskDesc = out.TaskDesc
		msg.TaskAbstract = out.TaskAbstract
		return e.recordAndSend(ctx, state, msg)

	default: // tagDiscussion and any unrecognised value fall back to discussion
		msg := e.buildMessage(state, meshtypes.TypeDiscussion, out.Content, recipients)
		return e.recordAndSend(ctx, state, msg)
	}
}

// handleAsyncAssign runs on the assignee's engine: rephrase, register the
// task, acknowledge with an InformProgress stub, then execute in the
// background and report InformResult once done.
func (e *Engine) handleAsyncAssign(ctx context.Context, state *SessionState, msg meshtypes.AgentMessage) error {
	out, brief, err := e.rephraseForAssignment(ctx, state, msg.TaskDesc, msg.TaskAbstract)
	if err != nil {
		return err
	}
	taskID := state.Tasks.CreateTask(out.Description, out.Abstract, e.Self.Name, meshtypes.ToStart, "")

	progress := e.buildMessage(state, meshtypes.TypeInformProgress,
		fmt.Sprintf("starting task: %s", out.Abstract), []string{msg.Sender})
	progress.TaskID = taskID
	progress.TaskAbstract = out.Abstract
	if err := e.recordAndSend(ctx, state, progress); err != nil {
		return err
	}

	detached := context.WithoutCancel(ctx)
	go e.executeAndReport(detached, state, taskID, brief, msg.Sender)
	return nil
}

// handleSyncAssign runs on the assignee's engine, blocking the discussion
// loop until execution completes.
func (e *Engine) handleSyncAssign(ctx context.Context, state *SessionState, msg meshtypes.AgentMessage) error {
	_, brief, err := e.rephraseForAssignment(ctx, state, msg.TaskDesc, msg.TaskAbstract)
	if err != nil {
		return err
	}
	taskID := state.Tasks.CreateTask(msg.TaskDesc, msg.TaskAbstract, e.Self.Name, meshtypes.InProgress, "")

	conclusion, runErr := e.maybeExecute(ctx, state, brief)
	status := meshtypes.Completed
	if runErr != nil {
		status = meshtypes.Failed
		conclusion = runErr.Error()
	}
	state.Tasks.UpdateTask(taskID, "", "", e.Self.Name, status, conclusion, "")

	result := e.buildMessage(state, meshtypes.TypeInformResult, conclusion, []string{msg.Sender})
	result.TaskID = taskID
	result.TaskConclusion = conclusion
	return e.recordAndSend(ctx, state, result)
}

// executeAndReport runs in the background on behalf of handleAsyncAssign.
func (e *Engine) executeAndReport(ctx context.Context, state *SessionState, taskID, brief, assigner string) {
	conclusion, runErr := e.maybeExecute(ctx, state, brief)
	status := meshtypes.Completed
	if runErr != nil {
		status = meshtypes.Failed
		conclusion = runErr.Error()
		meshlog.ErrorCF("coordengine", "async task execution failed", map[string]any{
			"task_id": taskID, "error": runErr.Error(),
		})
	}

	state.Tasks.UpdateTask(taskID, "", "", e.Self.Name, status, conclusion, "")
	result := e.buildMessage(state, meshtypes.TypeInformResult, conclusion, []string{assigner})
	result.TaskID = taskID
	result.TaskConclusion = conclusion
	err := e.recordAndSend(ctx, state, result)

	if err != nil {
		meshlog.ErrorCF("coordengine", "reporting async task result failed", map[string]any{
			"task_id": taskID, "error": err.Error(),
		})
		return
	}
	e.persist(ctx, state)
}

// runExecutor delegates to the configured Executor, or — absent one — asks
// the coordination LLM itself to produce the conclusion.
func (e *Engine) runExecutor(ctx context.Context, brief string) (string, error) {
	if e.Executor != nil {
		return e.Executor.Run(ctx, brief)
	}
	result, err := e.Gateway.Generate(ctx,
		[]string{personaPrompt(e.Self), "Execute the following task and report its conclusion.", brief},
		nil, nil, nil, meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatText, e.modelArgs())
	if err != nil {
		return "", fmt.Errorf("%w: %v", meshtypes.ErrExecutorFailure, err)
	}
	return result.ContentString(), nil
}

// handleConclude produces the final answer, records it on the session, and
// broadcasts it to the whole team.
func (e *Engine) handleConclude(ctx context.Context, state *SessionState, msg meshtypes.AgentMessage) error {
	result, err := e.Gateway.Generate(ctx,
		[]string{personaPrompt(e.Self), multiAgentRulesPrompt, coordinationPrompt(state.Info),
			"Produce the final, self-contained conclusion for this discussion, incorporating: " + msg.Content},
		historyAsChatTurns(state.Memory, e.Self.Name), nil, nil,
		meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatText, e.modelArgs())
	if err != nil {
		return fmt.Errorf("producing final conclusion: %w", err)
	}
	conclusion := result.ContentString()
	state.Info.Conclusion = &conclusion

	team := state.Info.MemberNames()
	final := e.buildMessage(state, meshtypes.TypeConclusion, conclusion, team)
	if err := e.recordAndSend(ctx, state, final); err != nil {
		return err
	}
	e.persist(ctx, state)
	return nil
}

// buildMessage assembles the envelope shared by every outgoing turn.
// NextSpeaker uses the single-string wire shape when there is exactly one
// recipient, and the list shape otherwise, matching spec.md's "next_people
// is a single string for discussion, a list for assignment" contract.
func (e *Engine) buildMessage(state *SessionState, t meshtypes.CommunicationType, content string, next []string) meshtypes.AgentMessage {
	var speaker meshtypes.NextSpeaker
	if len(next) == 1 {
		speaker = meshtypes.SingleNextSpeaker(next[0])
	} else {
		speaker = meshtypes.ManyNextSpeaker(next)
	}
	return meshtypes.AgentMessage{
		Content:     content,
		Sender:      e.Self.Name,
		CommID:      state.Info.CommID,
		NextSpeaker: speaker,
		State:       state.Info.State,
		Type:        t,
	}
}

// recordAndSend appends msg to this engine's own memory (since it is the
// author, not a recipient waiting for the router echo), advances the turn
// counter, and sends it over the Connection Manager. The router's fan-out
// always also delivers the message back to its own sender; recordIfNotSelf
// in HandleIncoming skips that echo, avoiding a double record. Locked
// against state.mu so a background executor goroutine (executeAndReport)
// and the main read loop never interleave their composition of the same
// session's CurrTurn/Memory.
func (e *Engine) recordAndSend(ctx context.Context, state *SessionState, msg meshtypes.AgentMessage) error {
	state.mu.Lock()
	state.Memory.Append(msg.ToLLMResult())
	state.Info.CurrTurn++
	state.mu.Unlock()
	return e.send(ctx, msg)
}
