package activities

import (
	"context"
	"time"

	"github.com/sounderhq/sounder/internal/streaming"
)

// EmitProgress publishes one progress event to the streaming hub. Invoked
// fire-and-forget from workflows; an event that finds no subscribers still
// lands in the replay buffer.
func (a *Activities) EmitProgress(ctx context.Context, evt streaming.Event) error {
	if a.hub == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	a.hub.Publish(evt)
	return nil
}
