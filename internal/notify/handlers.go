package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/techshop-api/internal/events"
)

// Register binds the notifier to every order topic on mux.
func (n EmailNotifier) Register(mux *asynq.ServeMux) {
	for _, topic := range events.DefaultTopics() {
		mux.HandleFunc(topic, n.ProcessTask)
	}
}

// ProcessTask handles one queued order event. Malformed payloads are not retried.
func (n EmailNotifier) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ev, err := events.DecodeOrderEvent(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return n.Notify(ctx, ev)
}
