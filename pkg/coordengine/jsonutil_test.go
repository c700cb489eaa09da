package coordengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIntoRoundTrip(t *testing.T) {
	v := map[string]any{"abstract": "a", "index_to_integrate": []any{float64(0), float64(2)}}
	var out rephraseOutput
	require.NoError(t, decodeInto(v, &out))
	assert.Equal(t, "a", out.Abstract)
	assert.Equal(t, []int{0, 2}, out.IndexToIntegrate)
}

func TestDecodeIntoRejectsUnmarshalableTarget(t *testing.T) {
	err := decodeInto(map[string]any{"selected_task_indices": "not-a-list"}, &pauseOutput{})
	assert.Error(t, err)
}
