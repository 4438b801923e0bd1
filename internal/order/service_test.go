package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/events"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

type recordedEvent struct {
	topic   string
	payload events.OrderEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, _ := payload.(events.OrderEvent)
	f.events = append(f.events, recordedEvent{topic: topic, payload: ev})
	return f.err
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.topic)
	}
	return out
}

type fakeVerifier struct {
	err    error
	calls  int
	amount float64
}

func (f *fakeVerifier) VerifyCapture(_ context.Context, _ order.PaymentResult, amount float64) error {
	f.calls++
	f.amount = amount
	return f.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*order.Service, *order.MemoryRepository, *fakePublisher) {
	t.Helper()
	repo := order.NewMemoryRepository()
	pub := &fakePublisher{}
	svc := &order.Service{
		Repo:    repo,
		Pricing: pricing.Default(),
		Events:  pub,
		Now:     func() time.Time { return fixedNow },
	}
	return svc, repo, pub
}

func sampleInput() order.CreateInput {
	return order.CreateInput{
		Items: []order.LineItem{{ProductID: "p1", Name: "Headphones", Image: "/img/p1.jpg", Price: 60, Quantity: 2}},
		ShippingAddress: order.Address{
			Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		PaymentMethod: "PayPal",
	}
}

func TestCreateComputesTotalsServerSide(t *testing.T) {
	svc, _, pub := newService(t)

	o, created, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, o.ID)
	require.Equal(t, "u1", o.UserID)
	require.Equal(t, pricing.Summary{Subtotal: 120, ShippingFee: 0, Tax: 18, GrandTotal: 138}, o.Summary())
	require.False(t, o.IsPaid)
	require.False(t, o.IsDelivered)
	require.Equal(t, fixedNow, o.CreatedAt)
	require.Equal(t, []string{events.TopicOrderCreated}, pub.topics())
}

func TestCreateRejectsEmptyItems(t *testing.T) {
	svc, _, _ := newService(t)
	in := sampleInput()
	in.Items = []order.LineItem{}

	_, _, err := svc.Create(context.Background(), "u1", "", in)
	require.ErrorIs(t, err, order.ErrNoItems)
}

func TestCreateValidatesFields(t *testing.T) {
	svc, _, _ := newService(t)
	in := sampleInput()
	in.ShippingAddress.City = ""
	in.Items[0].Quantity = 0

	_, _, err := svc.Create(context.Background(), "u1", "", in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Message, "shippingAddress.city")
	require.Contains(t, appErr.Message, "orderItems[0].qty")
}

func TestCreateRejectsTamperedTotals(t *testing.T) {
	svc, _, _ := newService(t)
	in := sampleInput()
	in.Summary = &pricing.Summary{Subtotal: 1, ShippingFee: 0, Tax: 0, GrandTotal: 1}

	_, _, err := svc.Create(context.Background(), "u1", "", in)
	require.ErrorIs(t, err, order.ErrTotalsMismatch)

	in.Summary = &pricing.Summary{Subtotal: 120, ShippingFee: 0, Tax: 18, GrandTotal: 138}
	_, created, err := svc.Create(context.Background(), "u1", "", in)
	require.NoError(t, err)
	require.True(t, created)
}

func TestCreateRejectsZeroTotals(t *testing.T) {
	svc, repo, _ := newService(t)
	in := sampleInput()
	in.Summary = &pricing.Summary{}

	_, _, err := svc.Create(context.Background(), "u1", "", in)
	require.ErrorIs(t, err, order.ErrTotalsMismatch)
	_, total, err := repo.List(context.Background(), order.ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestCreateWithSameKeyReturnsOriginalOrder(t *testing.T) {
	svc, repo, pub := newService(t)

	first, created, err := svc.Create(context.Background(), "u1", "key-1", sampleInput())
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.Create(context.Background(), "u1", "key-1", sampleInput())
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	// another user may reuse the same key
	_, created, err = svc.Create(context.Background(), "u2", "key-1", sampleInput())
	require.NoError(t, err)
	require.True(t, created)

	all, total, err := repo.List(context.Background(), order.ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.EqualValues(t, 2, total)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderCreated}, pub.topics())
}

func TestCreateConcurrentSameKeyCreatesOnce(t *testing.T) {
	svc, repo, _ := newService(t)
	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, _, err := svc.Create(context.Background(), "u1", "same", sampleInput())
			assert.NoError(t, err)
			ids[i] = o.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	mine, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestCreateSurvivesPublishFailure(t *testing.T) {
	svc, _, pub := newService(t)
	pub.err = errors.New("queue down")
	_, created, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)
	require.True(t, created)
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	svc, _, _ := newService(t)
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), o.ID, order.Viewer{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), o.ID, order.Viewer{UserID: "admin", Admin: true})
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), o.ID, order.Viewer{UserID: "u2"})
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = svc.Get(context.Background(), "missing", order.Viewer{UserID: "u1"})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestMarkPaidOnlyOnce(t *testing.T) {
	svc, _, pub := newService(t)
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)

	receipt := order.PaymentResult{ID: "CAP-1", Status: "COMPLETED", UpdateTime: "2026-03-01T12:00:00Z", EmailAddress: "buyer@example.com"}
	paid, err := svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, receipt)
	require.NoError(t, err)
	require.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, fixedNow, *paid.PaidAt)
	require.Equal(t, &receipt, paid.PaymentResult)

	second := receipt
	second.ID = "CAP-2"
	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, second)
	require.ErrorIs(t, err, order.ErrAlreadyPaid)

	stored, err := svc.Get(context.Background(), o.ID, order.Viewer{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "CAP-1", stored.PaymentResult.ID)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderPaid}, pub.topics())
}

func TestMarkPaidRequiresReceiptAndOwnership(t *testing.T) {
	svc, _, _ := newService(t)
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, order.PaymentResult{})
	require.True(t, common.IsAppError(err))

	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u2"}, order.PaymentResult{ID: "x", Status: "COMPLETED"})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestMarkPaidConsultsVerifier(t *testing.T) {
	svc, _, _ := newService(t)
	verifier := &fakeVerifier{err: errors.New("amount mismatch")}
	svc.Verifier = verifier
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, order.PaymentResult{ID: "x", Status: "COMPLETED"})
	require.ErrorIs(t, err, order.ErrPaymentUnverified)
	require.Equal(t, 1, verifier.calls)
	require.Equal(t, float64(138), verifier.amount)

	verifier.err = nil
	paid, err := svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, order.PaymentResult{ID: "x", Status: "COMPLETED"})
	require.NoError(t, err)
	require.True(t, paid.IsPaid)
}

func TestMarkPaidRejectsCaptureUsedByAnotherOrder(t *testing.T) {
	svc, _, pub := newService(t)
	svc.Verifier = &fakeVerifier{}
	viewer := order.Viewer{UserID: "u1"}
	first, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)
	second, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)
	require.Equal(t, first.TotalPrice, second.TotalPrice)

	receipt := order.PaymentResult{ID: "SB-000001", Status: "COMPLETED"}
	_, err = svc.MarkPaid(context.Background(), first.ID, viewer, receipt)
	require.NoError(t, err)
	_, err = svc.MarkPaid(context.Background(), second.ID, viewer, receipt)
	require.ErrorIs(t, err, order.ErrReceiptUsed)

	stored, err := svc.Get(context.Background(), second.ID, viewer)
	require.NoError(t, err)
	require.False(t, stored.IsPaid)
	require.Nil(t, stored.PaymentResult)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderCreated, events.TopicOrderPaid}, pub.topics())
}

type fakeLocker struct {
	keys []string
	err  error
}

func (f *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

func TestMarkPaidHoldsOrderLock(t *testing.T) {
	svc, _, _ := newService(t)
	locker := &fakeLocker{}
	svc.Lock = locker
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)

	receipt := order.PaymentResult{ID: "CAP-1", Status: "COMPLETED"}
	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, receipt)
	require.NoError(t, err)
	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, receipt)
	require.ErrorIs(t, err, order.ErrAlreadyPaid)
	require.Equal(t, []string{"lock:order:pay:" + o.ID, "lock:order:pay:" + o.ID}, locker.keys)

	other, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)
	locker.err = context.DeadlineExceeded
	_, err = svc.MarkPaid(context.Background(), other.ID, order.Viewer{UserID: "u1"}, receipt)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	stored, err := svc.Get(context.Background(), other.ID, order.Viewer{UserID: "u1"})
	require.NoError(t, err)
	require.False(t, stored.IsPaid)
}

func TestMarkDeliveredRequiresPayment(t *testing.T) {
	svc, _, pub := newService(t)
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)

	_, err = svc.MarkDelivered(context.Background(), o.ID)
	require.ErrorIs(t, err, order.ErrNotPaid)

	_, err = svc.MarkPaid(context.Background(), o.ID, order.Viewer{UserID: "u1"}, order.PaymentResult{ID: "x", Status: "COMPLETED"})
	require.NoError(t, err)

	delivered, err := svc.MarkDelivered(context.Background(), o.ID)
	require.NoError(t, err)
	require.True(t, delivered.IsDelivered)
	require.NotNil(t, delivered.DeliveredAt)
	require.True(t, delivered.IsPaid)

	_, err = svc.MarkDelivered(context.Background(), o.ID)
	require.ErrorIs(t, err, order.ErrAlreadyDelivered)
	_, err = svc.MarkDelivered(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicOrderPaid, events.TopicOrderDelivered}, pub.topics())
}

func TestListAllPaginates(t *testing.T) {
	svc, _, _ := newService(t)
	for i := 0; i < 5; i++ {
		_, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
		require.NoError(t, err)
	}
	orders, page, err := svc.ListAll(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, common.Page{Page: 2, Pages: 3, Total: 5}, page)

	orders, _, err = svc.ListAll(context.Background(), 4, 2)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestPurgeRemovesOrder(t *testing.T) {
	svc, _, _ := newService(t)
	o, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.NoError(t, err)
	require.NoError(t, svc.Purge(context.Background(), o.ID))
	_, err = svc.Get(context.Background(), o.ID, order.Viewer{Admin: true})
	require.ErrorIs(t, err, order.ErrNotFound)
	require.ErrorIs(t, svc.Purge(context.Background(), o.ID), order.ErrNotFound)
}

func TestUnconfiguredService(t *testing.T) {
	var svc *order.Service
	_, _, err := svc.Create(context.Background(), "u1", "", sampleInput())
	require.Error(t, err)
}
