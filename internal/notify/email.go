// Package notify emails buyers about their order lifecycle events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/auth"
	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/events"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

// UserLookup resolves the recipient of an event.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (auth.User, error)
}

// EmailNotifier sends one transactional email per order event.
type EmailNotifier struct {
	Users        UserLookup
	Mail         common.EmailSender
	Log          zerolog.Logger
	TopicToggles map[string]bool
}

// Notify emails the buyer behind ev. Events for unknown users are dropped.
func (n EmailNotifier) Notify(ctx context.Context, ev events.OrderEvent) error {
	if n.Mail == nil || n.Users == nil {
		return errors.New("notify: notifier not configured")
	}
	if enabled, ok := n.TopicToggles[ev.Topic]; ok && !enabled {
		return nil
	}
	u, err := n.Users.UserByID(ctx, ev.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		n.Log.Warn().Str("topic", ev.Topic).Str("order_id", ev.OrderID).Str("user_id", ev.UserID).Msg("notify: recipient not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load recipient: %w", err)
	}
	if err := n.Mail.Send(u.Email, subjectFor(ev.Topic), bodyFor(u.Name, ev)); err != nil {
		return fmt.Errorf("notify: send %s: %w", ev.Topic, err)
	}
	n.Log.Info().Str("topic", ev.Topic).Str("order_id", ev.OrderID).Str("event_id", ev.ID).Msg("order notification sent")
	return nil
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "We received your order"
	case events.TopicOrderPaid:
		return "Payment received"
	case events.TopicOrderDelivered:
		return "Your order was delivered"
	default:
		return fmt.Sprintf("Order update (%s)", topic)
	}
}

func bodyFor(name string, ev events.OrderEvent) string {
	greeting := "Hello"
	if name != "" {
		greeting += " " + name
	}
	return fmt.Sprintf("%s,\n\nOrder %s: %s on %s.\nOrder total: %s\n",
		greeting, ev.OrderID, subjectFor(ev.Topic), ev.OccurredAt.UTC().Format(time.RFC1123), pricing.FormatAmount(ev.Total))
}
