package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/events"
	"github.com/noah-isme/techshop-api/internal/obs"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// PaymentVerifier confirms a capture receipt with the payment provider.
type PaymentVerifier interface {
	VerifyCapture(ctx context.Context, receipt PaymentResult, amount float64) error
}

// Service implements the order lifecycle.
type Service struct {
	Repo     Repository
	Pricing  pricing.Calculator
	Events   Publisher
	Verifier PaymentVerifier
	Lock     Locker
	Log      zerolog.Logger
	Now      func() time.Time
}

// Locker serialises work on a single key across API replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// payLockTTL bounds how long one pay attempt may hold an order.
const payLockTTL = 30 * time.Second

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Repo == nil {
		return errors.New("order service not configured")
	}
	return nil
}

// Create places an order for userID. With a non-empty key, a repeated
// submission returns the order created by the first one and created=false.
func (s *Service) Create(ctx context.Context, userID, key string, in CreateInput) (Order, bool, error) {
	if err := s.ready(); err != nil {
		return Order{}, false, err
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "OrderService.Create")
	defer span.End()

	result := "rejected"
	defer func() {
		span.SetAttributes(attribute.String("order.create.result", result))
		obs.OrdersCreatedTotal.WithLabelValues(result).Inc()
	}()

	if len(in.Items) == 0 {
		return Order{}, false, ErrNoItems
	}
	if err := common.Validate(in); err != nil {
		return Order{}, false, err
	}
	key = strings.TrimSpace(key)
	if key != "" {
		existing, err := s.Repo.FindByIdempotencyKey(ctx, userID, key)
		if err == nil {
			result = "replayed"
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Order{}, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	lines := make([]pricing.Item, 0, len(in.Items))
	for _, it := range in.Items {
		lines = append(lines, pricing.Item{UnitPrice: it.Price, Quantity: it.Quantity})
	}
	totals := s.Pricing.Compute(lines)
	if in.Summary != nil && !in.Summary.Equal(totals) {
		return Order{}, false, ErrTotalsMismatch
	}

	now := s.now()
	o := Order{
		UserID:          userID,
		Items:           append([]LineItem(nil), in.Items...),
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ItemsPrice:      totals.Subtotal,
		ShippingPrice:   totals.ShippingFee,
		TaxPrice:        totals.Tax,
		TotalPrice:      totals.GrandTotal,
		IdempotencyKey:  key,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.Repo.Insert(ctx, o)
	if errors.Is(err, ErrDuplicateKey) && key != "" {
		// a concurrent submission with the same key won the insert
		existing, findErr := s.Repo.FindByIdempotencyKey(ctx, userID, key)
		if findErr != nil {
			return Order{}, false, fmt.Errorf("reload duplicate order: %w", findErr)
		}
		result = "replayed"
		return existing, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert order")
		return Order{}, false, fmt.Errorf("insert order: %w", err)
	}
	result = "created"
	span.SetAttributes(attribute.String("order.id", created.ID))
	s.Log.Info().Str("order_id", created.ID).Str("user_id", userID).Float64("total", created.TotalPrice).Msg("order created")
	s.publish(ctx, events.TopicOrderCreated, created)
	return created, true, nil
}

// Get returns the order when the viewer may see it. Orders owned by other
// users are reported as not found.
func (s *Service) Get(ctx context.Context, id string, viewer Viewer) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	o, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !viewer.CanSee(o) {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// ListMine returns the caller's orders, newest first.
func (s *Service) ListMine(ctx context.Context, userID string) ([]Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Repo.ListByUser(ctx, userID)
}

// ListAll pages through every order.
func (s *Service) ListAll(ctx context.Context, page, pageSize int) ([]Order, common.Page, error) {
	if err := s.ready(); err != nil {
		return nil, common.Page{}, err
	}
	if page < 1 {
		page = 1
	}
	orders, total, err := s.Repo.List(ctx, ListQuery{Offset: (page - 1) * pageSize, Limit: pageSize})
	if err != nil {
		return nil, common.Page{}, err
	}
	return orders, common.NewPage(page, pageSize, total), nil
}

// MarkPaid records the capture receipt. Paying an order twice is a
// conflict and leaves the stored receipt untouched.
func (s *Service) MarkPaid(ctx context.Context, id string, viewer Viewer, receipt PaymentResult) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "OrderService.MarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	result := "rejected"
	defer func() { obs.OrderTransitionsTotal.WithLabelValues("paid", result).Inc() }()

	if err := common.Validate(receipt); err != nil {
		return Order{}, err
	}
	var updated Order
	run := func(ctx context.Context) error {
		var err error
		updated, err = s.markPaid(ctx, id, viewer, receipt)
		return err
	}
	var err error
	if s.Lock != nil {
		err = s.Lock.WithLock(ctx, "lock:order:pay:"+id, payLockTTL, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return Order{}, err
	}
	result = "ok"
	return updated, nil
}

func (s *Service) markPaid(ctx context.Context, id string, viewer Viewer, receipt PaymentResult) (Order, error) {
	span := trace.SpanFromContext(ctx)
	current, err := s.Get(ctx, id, viewer)
	if err != nil {
		return Order{}, err
	}
	if current.IsPaid {
		return Order{}, ErrAlreadyPaid
	}
	if s.Verifier != nil {
		if err := s.Verifier.VerifyCapture(ctx, receipt, current.TotalPrice); err != nil {
			span.RecordError(err)
			s.Log.Warn().Err(err).Str("order_id", id).Str("capture_id", receipt.ID).Msg("payment verification failed")
			return Order{}, fmt.Errorf("%w: %v", ErrPaymentUnverified, err)
		}
	}
	updated, err := s.Repo.MarkPaid(ctx, id, s.now(), receipt)
	if errors.Is(err, ErrTransitionRejected) {
		return Order{}, ErrAlreadyPaid
	}
	if errors.Is(err, ErrReceiptUsed) {
		s.Log.Warn().Str("order_id", id).Str("capture_id", receipt.ID).Msg("capture already recorded on another order")
		return Order{}, ErrReceiptUsed
	}
	if err != nil {
		span.RecordError(err)
		return Order{}, fmt.Errorf("mark paid: %w", err)
	}
	s.Log.Info().Str("order_id", id).Str("capture_id", receipt.ID).Msg("order paid")
	s.publish(ctx, events.TopicOrderPaid, updated)
	return updated, nil
}

// MarkDelivered flips the delivered flag of a paid order.
func (s *Service) MarkDelivered(ctx context.Context, id string) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "OrderService.MarkDelivered")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	result := "rejected"
	defer func() { obs.OrderTransitionsTotal.WithLabelValues("delivered", result).Inc() }()

	current, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if err := deliverable(current); err != nil {
		return Order{}, err
	}
	updated, err := s.Repo.MarkDelivered(ctx, id, s.now())
	if errors.Is(err, ErrTransitionRejected) {
		latest, findErr := s.Repo.FindByID(ctx, id)
		if findErr != nil {
			return Order{}, findErr
		}
		if err := deliverable(latest); err != nil {
			return Order{}, err
		}
		return Order{}, ErrAlreadyDelivered
	}
	if err != nil {
		span.RecordError(err)
		return Order{}, fmt.Errorf("mark delivered: %w", err)
	}
	result = "ok"
	s.Log.Info().Str("order_id", id).Msg("order delivered")
	s.publish(ctx, events.TopicOrderDelivered, updated)
	return updated, nil
}

func deliverable(o Order) error {
	if !o.IsPaid {
		return ErrNotPaid
	}
	if o.IsDelivered {
		return ErrAlreadyDelivered
	}
	return nil
}

// Purge removes an order permanently.
func (s *Service) Purge(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.Warn().Str("order_id", id).Msg("order purged")
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, o Order) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, topic, events.NewOrderEvent(topic, o.ID, o.UserID, o.TotalPrice, s.now())); err != nil {
		s.Log.Warn().Err(err).Str("topic", topic).Str("order_id", o.ID).Msg("publish order event")
	}
}
