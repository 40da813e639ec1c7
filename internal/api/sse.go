package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/reelforge/reelforge/internal/orchestrator"
)

// writeSSEStream drains events onto w as server-sent events until it has
// written a terminal (complete or error) event, the event channel closes
// (the subscription was cancelled), or the client disconnects. It never blocks the orchestrator
// task producing events: the channel is the only coupling, and it is
// buffered and best-effort on the publish side.
func writeSSEStream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, events <-chan orchestrator.Event) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}

			data, err := event.MarshalData()
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data)
			flusher.Flush()

			if event.Name == orchestrator.EventComplete || event.Name == orchestrator.EventError {
				return
			}
		}
	}
}
