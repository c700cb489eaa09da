package coordengine

import (
	"context"
	"fmt"

	"github.com/agentmesh/mesh/pkg/meshtypes"
	"github.com/agentmesh/mesh/pkg/vectordir"
)

// ContactBook is one agent's private capability-indexed address book,
// distinct from the router's global registry: entries are added only once
// this client has actually seen (discovered or teamed up with) an agent.
type ContactBook struct {
	dir *vectordir.Directory
}

func NewContactBook(dir *vectordir.Directory) *ContactBook {
	return &ContactBook{dir: dir}
}

// AddUnseen upserts every entry of candidates whose name is not already in
// the book, returning those newly added.
func (b *ContactBook) AddUnseen(ctx context.Context, candidates []meshtypes.AgentInfo) ([]meshtypes.AgentInfo, error) {
	var added []meshtypes.AgentInfo
	for _, c := range candidates {
		if b.dir.Contains(ctx, c.Name) {
			continue
		}
		if err := b.dir.Upsert(ctx, c); err != nil {
			return nil, fmt.Errorf("adding contact %s: %w", c.Name, err)
		}
		added = append(added, c)
	}
	return added, nil
}

// Discover searches the book by capability phrase, returning only entries
// not already known to the caller (by name), deduplicated.
func (b *ContactBook) Discover(ctx context.Context, queries []string, alreadyKnown map[string]bool, topK int) ([]meshtypes.AgentInfo, error) {
	hits, err := b.dir.Search(ctx, queries, topK)
	if err != nil {
		return nil, fmt.Errorf("searching contact book: %w", err)
	}
	out := make([]meshtypes.AgentInfo, 0, len(hits))
	for _, h := range hits {
		if alreadyKnown[h.Name] {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (b *ContactBook) Contains(ctx context.Context, name string) bool {
	return b.dir.Contains(ctx, name)
}
