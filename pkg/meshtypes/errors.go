// Package meshtypes holds the wire and storage types shared by the router
// and the coordination engine: agent identity, sessions, chat records, the
// tagged AgentMessage union, and the task/communication bookkeeping types.
package meshtypes

import "errors"

// Sentinel errors for the seven error kinds the runtime distinguishes, plus
// ErrAgentNotFound for registry lookups.
// Callers wrap these with fmt.Errorf("...: %w", Err...) to attach context.
var (
	// ErrTransientTransport covers socket drops and request timeouts that
	// are retried with back-off before being surfaced to the caller.
	ErrTransientTransport = errors.New("transient transport failure")

	// ErrSchemaViolation covers malformed AgentMessage or LLM JSON payloads.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrToolCallInvalid marks an LLM-named tool absent from the offered schema.
	ErrToolCallInvalid = errors.New("invalid tool call")

	// ErrContentFiltered marks a content-policy refusal from the LLM backend.
	ErrContentFiltered = errors.New("content filtered")

	// ErrUnknownSession marks a continuation request for a comm_id that has
	// neither in-memory nor persisted state.
	ErrUnknownSession = errors.New("unknown session")

	// ErrExecutorFailure marks a failed task execution; the failure text is
	// still recorded as the task's conclusion so triggers release.
	ErrExecutorFailure = errors.New("executor failure")

	// ErrTeamupFailure marks a team-up that produced no viable roster after
	// the configured number of attempts.
	ErrTeamupFailure = errors.New("teamup failure")

	// ErrAgentNotFound marks a lookup (query_assistant, retrieve) that found
	// no matching registered agent.
	ErrAgentNotFound = errors.New("agent not found")
)
