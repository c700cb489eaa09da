package meshrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/store"
	"github.com/agentmesh/mesh/pkg/vectordir"
)

const agentsTable = "agents"

// Registry is the durable, capability-searchable catalogue of every agent
// that has ever registered: a store.Table for exact lookups and a
// vectordir.Directory for description-embedding search, mirroring the
// teacher's CapabilityRegistry split between an exact map and a search
// index, minus the NATS announce/query transport this spec has no use for.
type Registry struct {
	agents *store.Table
	dir    *vectordir.Directory
}

func NewRegistry(ctx context.Context, s *store.Store, dir *vectordir.Directory) (*Registry, error) {
	table, err := s.Table(ctx, agentsTable)
	if err != nil {
		return nil, fmt.Errorf("opening agents table: %w", err)
	}
	return &Registry{agents: table, dir: dir}, nil
}

// Register is idempotent by name: re-registering an already-known name
// leaves its original record untouched, matching AgentInfo's
// immutable-post-registration contract.
func (r *Registry) Register(ctx context.Context, info meshtypes.AgentInfo) error {
	var existing meshtypes.AgentInfo
	if err := r.agents.Get(ctx, info.Name, &existing); err == nil {
		return nil
	} else if err != store.ErrNotFound {
		return fmt.Errorf("checking existing registration for %s: %w", info.Name, err)
	}

	if err := r.agents.Put(ctx, info.Name, info); err != nil {
		return fmt.Errorf("registering %s: %w", info.Name, err)
	}
	if err := r.dir.Upsert(ctx, info); err != nil {
		return fmt.Errorf("indexing %s: %w", info.Name, err)
	}
	return nil
}

// Get returns the registered record for name, or ok=false if unknown.
func (r *Registry) Get(ctx context.Context, name string) (meshtypes.AgentInfo, bool, error) {
	var info meshtypes.AgentInfo
	err := r.agents.Get(ctx, name, &info)
	if err == store.ErrNotFound {
		return meshtypes.AgentInfo{}, false, nil
	}
	if err != nil {
		return meshtypes.AgentInfo{}, false, fmt.Errorf("looking up %s: %w", name, err)
	}
	return info, true, nil
}

// Query resolves a list of names in order, preserving position; unknown
// names yield a zero-value AgentInfo in that slot so callers can tell which
// entries were missing.
func (r *Registry) Query(ctx context.Context, names []string) ([]meshtypes.AgentInfo, error) {
	out := make([]meshtypes.AgentInfo, len(names))
	for i, name := range names {
		info, ok, err := r.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = info
		}
	}
	return out, nil
}

// ListAll returns every registered agent; order is not guaranteed.
func (r *Registry) ListAll(ctx context.Context) ([]meshtypes.AgentInfo, error) {
	var out []meshtypes.AgentInfo
	err := r.agents.Iter(ctx, func(_ string, raw json.RawMessage) error {
		var info meshtypes.AgentInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	return out, nil
}

// RetrieveAssistants searches the capability directory by one or more
// capability phrases and returns deduplicated matches, excluding sender per
// the caller's own policy (the caller passes sender so it is never matched
// against itself).
func (r *Registry) RetrieveAssistants(ctx context.Context, sender string, capabilities []string, topK int) ([]meshtypes.AgentInfo, error) {
	hits, err := r.dir.Search(ctx, capabilities, topK)
	if err != nil {
		return nil, fmt.Errorf("searching capabilities: %w", err)
	}
	out := make([]meshtypes.AgentInfo, 0, len(hits))
	for _, h := range hits {
		if h.Name == sender {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
