package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/anotherai-dev/anotherai/pkg/bus"
	"github.com/anotherai-dev/anotherai/pkg/models"
)

// publishTimeout bounds emission so a slow broker never stalls a request
// goroutine for long.
const publishTimeout = 5 * time.Second

// Emitter publishes finished completions onto the task bus. It satisfies
// the runner's emitter interface: EmitCompletion never blocks the caller
// and never fails it; a lost publish is logged and captured, not surfaced.
type Emitter struct {
	bus    *bus.Bus
	logger *slog.Logger
}

// NewEmitter builds an Emitter over the given bus.
func NewEmitter(b *bus.Bus) *Emitter {
	return &Emitter{bus: b, logger: slog.Default()}
}

// EmitCompletion queues the completion for persistence.
func (e *Emitter) EmitCompletion(c *models.AgentCompletion) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := e.bus.Publish(ctx, TaskStoreCompletion, StoreCompletionPayload{Completion: c}); err != nil {
			e.logger.Error("Failed to enqueue completion for storage",
				"completion_id", c.ID, "agent_id", c.AgentID, "error", err)
		}
	}()
}
