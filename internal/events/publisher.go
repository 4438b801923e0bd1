package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultQueue is the asynq queue order events are written to.
const DefaultQueue = "events"

// Enqueuer is the subset of *asynq.Client used by Publisher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher enqueues events as asynq tasks whose type is the topic.
type Publisher struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Publish encodes payload as JSON and enqueues it. Payloads carrying an
// EventID are enqueued at most once.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	if p == nil || p.Client == nil {
		return errors.New("events: publisher not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}
	queue := p.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue)}
	if p.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(p.MaxRetry))
	}
	if p.Retention > 0 {
		opts = append(opts, asynq.Retention(p.Retention))
	}
	if identified, ok := payload.(interface{ EventID() string }); ok && identified.EventID() != "" {
		opts = append(opts, asynq.TaskID(identified.EventID()))
	}
	_, err = p.Client.EnqueueContext(ctx, asynq.NewTask(topic, body), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("events: enqueue %s: %w", topic, err)
	}
	return nil
}
