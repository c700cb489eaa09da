package vectordir

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// fakeEmbedder returns a deterministic low-dimensional vector derived from
// text length and first-byte value, enough to exercise storage and
// dedup without a real embedding backend.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var first float32
		if len(t) > 0 {
			first = float32(t[0])
		}
		out[i] = []float32{float32(len(t)), first}
	}
	return out, nil
}

func openTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "vecdir"), "agent_registry", fakeEmbedder{})
	require.NoError(t, err)
	return d
}

func TestUpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := openTestDirectory(t)

	info := meshtypes.AgentInfo{Name: "AgentB", Type: meshtypes.ThingAssistant, Desc: "summarises documents"}
	require.NoError(t, d.Upsert(ctx, info))

	got, ok, err := d.Get(ctx, "AgentB")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, info.Name, got.Name)
	assert.Equal(t, info.Desc, got.Desc)
}

func TestContainsReflectsUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	d := openTestDirectory(t)

	assert.False(t, d.Contains(ctx, "AgentC"))
	require.NoError(t, d.Upsert(ctx, meshtypes.AgentInfo{Name: "AgentC", Desc: "writes code"}))
	assert.True(t, d.Contains(ctx, "AgentC"))

	require.NoError(t, d.Delete(ctx, "AgentC"))
	assert.False(t, d.Contains(ctx, "AgentC"))
}

func TestSearchDedupsAcrossQueriesStableFirstSeen(t *testing.T) {
	ctx := context.Background()
	d := openTestDirectory(t)

	require.NoError(t, d.Upsert(ctx, meshtypes.AgentInfo{Name: "AgentA", Desc: "translates text"}))
	require.NoError(t, d.Upsert(ctx, meshtypes.AgentInfo{Name: "AgentB", Desc: "summarises documents"}))

	results, err := d.Search(ctx, []string{"translates text", "summarises documents", "translates text"}, 5)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, r := range results {
		seen[r.Name]++
	}
	assert.Equal(t, 1, seen["AgentA"], "repeated query must not duplicate a hit")
	assert.Equal(t, 1, seen["AgentB"])
}
