package meshrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/store"
)

const (
	sessionsTable    = "sessions"
	chatRecordsTable = "chat_records"
)

// SessionStore owns Session and ChatRecord persistence: sessions are
// created once by Teamup and never mutated; chat records are append-only.
type SessionStore struct {
	sessions *store.Table
	records  *store.Table
}

func NewSessionStore(ctx context.Context, s *store.Store) (*SessionStore, error) {
	sessions, err := s.Table(ctx, sessionsTable)
	if err != nil {
		return nil, fmt.Errorf("opening sessions table: %w", err)
	}
	records, err := s.Table(ctx, chatRecordsTable)
	if err != nil {
		return nil, fmt.Errorf("opening chat records table: %w", err)
	}
	return &SessionStore{sessions: sessions, records: records}, nil
}

// CreateSession allocates a new comm_id and persists both the Session and
// an empty ChatRecord for it.
func (ss *SessionStore) CreateSession(ctx context.Context, members []string, teamName string) (meshtypes.Session, error) {
	session := meshtypes.Session{
		CommID:      uuid.NewString(),
		MemberNames: members,
		TeamName:    teamName,
	}
	if err := ss.sessions.Put(ctx, session.CommID, session); err != nil {
		return meshtypes.Session{}, fmt.Errorf("persisting session: %w", err)
	}
	record := meshtypes.ChatRecord{
		CommID:   session.CommID,
		Members:  members,
		TeamName: teamName,
		Messages: []meshtypes.AgentMessage{},
	}
	if err := ss.records.Put(ctx, session.CommID, record); err != nil {
		return meshtypes.Session{}, fmt.Errorf("persisting chat record: %w", err)
	}
	return session, nil
}

// GetSession looks up a session by comm_id.
func (ss *SessionStore) GetSession(ctx context.Context, commID string) (meshtypes.Session, bool, error) {
	var session meshtypes.Session
	err := ss.sessions.Get(ctx, commID, &session)
	if err == store.ErrNotFound {
		return meshtypes.Session{}, false, nil
	}
	if err != nil {
		return meshtypes.Session{}, false, fmt.Errorf("looking up session %s: %w", commID, err)
	}
	return session, true, nil
}

// AppendMessage appends msg to the session's chat record. The caller is
// responsible for having already validated the session exists.
func (ss *SessionStore) AppendMessage(ctx context.Context, commID string, msg meshtypes.AgentMessage) error {
	var record meshtypes.ChatRecord
	if err := ss.records.Get(ctx, commID, &record); err != nil {
		return fmt.Errorf("loading chat record %s: %w", commID, err)
	}
	record.Messages = append(record.Messages, msg)
	if err := ss.records.Put(ctx, commID, record); err != nil {
		return fmt.Errorf("appending to chat record %s: %w", commID, err)
	}
	return nil
}

// FetchChatRecords returns the archived records for the given comm_ids. A
// nil/empty commIDs returns every archived record.
func (ss *SessionStore) FetchChatRecords(ctx context.Context, commIDs []string) ([]meshtypes.ChatRecord, error) {
	if len(commIDs) == 0 {
		var out []meshtypes.ChatRecord
		err := ss.records.Iter(ctx, func(_ string, raw json.RawMessage) error {
			var record meshtypes.ChatRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				return err
			}
			out = append(out, record)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetching all chat records: %w", err)
		}
		return out, nil
	}

	out := make([]meshtypes.ChatRecord, 0, len(commIDs))
	for _, id := range commIDs {
		var record meshtypes.ChatRecord
		if err := ss.records.Get(ctx, id, &record); err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("fetching chat record %s: %w", id, err)
		}
		out = append(out, record)
	}
	return out, nil
}
