package coordengine

import (
	"context"
	"errors"

	"github.com/agentmesh/mesh/pkg/meshlog"
)

// Run blocks, pulling frames off the Connection Manager and dispatching
// each to HandleIncoming, until ctx is cancelled. One message handling
// failure is logged and does not stop the loop — a malformed or
// unprocessable message must not take the whole client down.
func (e *Engine) Run(ctx context.Context) error {
	for {
		msg, err := e.Conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := e.HandleIncoming(ctx, msg); err != nil {
			meshlog.ErrorCF("coordengine", "failed handling incoming message", map[string]any{
				"comm_id": msg.CommID, "error": err.Error(),
			})
		}
	}
}
