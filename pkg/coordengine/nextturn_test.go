package coordengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

func TestNormalizeNextPeopleStringShape(t *testing.T) {
	got := normalizeNextPeople("Bob", []string{"Alice", "Bob"}, "Alice")
	assert.Equal(t, []string{"Bob"}, got)
}

func TestNormalizeNextPeopleListShape(t *testing.T) {
	got := normalizeNextPeople([]any{"Bob", "Carol"}, []string{"Alice", "Bob", "Carol"}, "Alice")
	assert.Equal(t, []string{"Bob", "Carol"}, got)
}

func TestNormalizeNextPeopleDropsNonTeamMembers(t *testing.T) {
	got := normalizeNextPeople([]any{"Stranger"}, []string{"Alice", "Bob"}, "Alice")
	assert.Equal(t, []string{"Alice"}, got, "a selection left with nothing allowed falls back to self")
}

func TestNormalizeNextPeopleAllowsSelf(t *testing.T) {
	got := normalizeNextPeople("Alice", []string{"Bob"}, "Alice")
	assert.Equal(t, []string{"Alice"}, got)
}

func TestMaxTurnsOrDefault(t *testing.T) {
	assert.Equal(t, 0, maxTurnsOrDefault(meshtypes.CommunicationInfo{}))
	n := 5
	assert.Equal(t, 5, maxTurnsOrDefault(meshtypes.CommunicationInfo{MaxTurns: &n}))
	zero := 0
	assert.Equal(t, 0, maxTurnsOrDefault(meshtypes.CommunicationInfo{MaxTurns: &zero}))
}

func TestRandomMemberExcludesGivenName(t *testing.T) {
	team := []string{"Alice", "Bob"}
	for i := 0; i < 20; i++ {
		got := randomMember(team, "Alice")
		assert.Equal(t, "Bob", got)
	}
}

func TestRandomMemberFallsBackToExcludedWhenAlone(t *testing.T) {
	assert.Equal(t, "Alice", randomMember([]string{"Alice"}, "Alice"))
}
