package coordengine

import (
	"encoding/json"
	"fmt"
)

// decodeInto round-trips a decoded-JSON value (typically a map[string]any
// produced by the gateway's ResponseFormatJSONObject path, or a tool call's
// Arguments map) through JSON into a concrete struct.
func decodeInto(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("re-encoding value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding into %T: %w", out, err)
	}
	return nil
}
