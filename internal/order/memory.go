package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps orders in process memory. It backs the memory
// store driver used for local runs and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]Order
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: map[string]Order{}}
}

func (m *MemoryRepository) Insert(_ context.Context, o Order) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.IdempotencyKey != "" {
		for _, existing := range m.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return Order{}, ErrDuplicateKey
			}
		}
	}
	o.ID = uuid.NewString()
	m.orders[o.ID] = clone(o)
	return clone(o), nil
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return clone(o), nil
}

func (m *MemoryRepository) FindByIdempotencyKey(_ context.Context, userID, key string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return clone(o), nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *MemoryRepository) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, clone(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryRepository) List(_ context.Context, q ListQuery) ([]Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		all = append(all, clone(o))
	}
	sortNewestFirst(all)
	total := int64(len(all))
	if q.Offset >= len(all) {
		return nil, total, nil
	}
	end := len(all)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return all[q.Offset:end], total, nil
}

func (m *MemoryRepository) MarkPaid(_ context.Context, id string, at time.Time, receipt PaymentResult) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.IsPaid {
		return Order{}, ErrTransitionRejected
	}
	for otherID, other := range m.orders {
		if otherID != id && other.PaymentResult != nil && other.PaymentResult.ID == receipt.ID {
			return Order{}, ErrReceiptUsed
		}
	}
	o.IsPaid = true
	o.PaidAt = &at
	o.PaymentResult = &receipt
	o.UpdatedAt = at
	m.orders[id] = o
	return clone(o), nil
}

func (m *MemoryRepository) MarkDelivered(_ context.Context, id string, at time.Time) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if !o.IsPaid || o.IsDelivered {
		return Order{}, ErrTransitionRejected
	}
	o.IsDelivered = true
	o.DeliveredAt = &at
	o.UpdatedAt = at
	m.orders[id] = o
	return clone(o), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func clone(o Order) Order {
	o.Items = append([]LineItem(nil), o.Items...)
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		o.PaymentResult = &pr
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		o.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	return o
}

func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
