package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/auth"
	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/events"
	"github.com/noah-isme/techshop-api/internal/notify"
)

func newNotifier(t *testing.T) (notify.EmailNotifier, *common.InMemoryEmail) {
	t.Helper()
	users := auth.NewMemoryUserStore()
	_, err := users.CreateUser(context.Background(), auth.User{ID: "u1", Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)
	mail := &common.InMemoryEmail{}
	return notify.EmailNotifier{Users: users, Mail: mail, Log: zerolog.Nop()}, mail
}

func TestNotifySendsPerTopic(t *testing.T) {
	n, mail := newNotifier(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, topic := range events.DefaultTopics() {
		require.NoError(t, n.Notify(context.Background(), events.NewOrderEvent(topic, "o1", "u1", 138, at)))
	}
	sent := mail.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "jane@example.com", sent[0].To)
	assert.Equal(t, "We received your order", sent[0].Subject)
	assert.Equal(t, "Payment received", sent[1].Subject)
	assert.Equal(t, "Your order was delivered", sent[2].Subject)
	assert.Contains(t, sent[1].Body, "Hello Jane")
	assert.Contains(t, sent[1].Body, "138.00")
}

func TestNotifyHonoursToggleAndUnknownUser(t *testing.T) {
	n, mail := newNotifier(t)
	n.TopicToggles = map[string]bool{events.TopicOrderCreated: false}

	require.NoError(t, n.Notify(context.Background(), events.NewOrderEvent(events.TopicOrderCreated, "o1", "u1", 10, time.Now())))
	require.NoError(t, n.Notify(context.Background(), events.NewOrderEvent(events.TopicOrderPaid, "o1", "ghost", 10, time.Now())))
	assert.Empty(t, mail.Sent())
}

func TestProcessTask(t *testing.T) {
	n, mail := newNotifier(t)

	body, err := json.Marshal(events.NewOrderEvent(events.TopicOrderPaid, "o1", "u1", 10, time.Now()))
	require.NoError(t, err)
	require.NoError(t, n.ProcessTask(context.Background(), asynq.NewTask(events.TopicOrderPaid, body)))
	assert.Len(t, mail.Sent(), 1)

	err = n.ProcessTask(context.Background(), asynq.NewTask(events.TopicOrderPaid, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRegisterRoutesTopics(t *testing.T) {
	n, mail := newNotifier(t)
	mux := asynq.NewServeMux()
	n.Register(mux)

	body, err := json.Marshal(events.NewOrderEvent(events.TopicOrderDelivered, "o1", "u1", 10, time.Now()))
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(events.TopicOrderDelivered, body)))
	require.Len(t, mail.Sent(), 1)
	assert.Equal(t, "Your order was delivered", mail.Sent()[0].Subject)
}
