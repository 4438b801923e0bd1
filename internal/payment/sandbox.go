package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/techshop-api/internal/order"
)

// Sandbox is an in-process provider. Orders get sequential ids and capture
// always succeeds.
type Sandbox struct {
	PayerEmail string
	Now        func() time.Time

	mu     sync.Mutex
	seq    int
	orders map[string]*Capture
}

// NewSandbox returns an empty sandbox provider.
func NewSandbox() *Sandbox {
	return &Sandbox{PayerEmail: "sb-buyer@example.com", orders: map[string]*Capture{}}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Sandbox) CreateOrder(_ context.Context, amount float64, currency string) (Result, error) {
	if amount <= 0 {
		return Result{}, fmt.Errorf("sandbox: amount must be positive, got %v", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders == nil {
		s.orders = map[string]*Capture{}
	}
	s.seq++
	id := fmt.Sprintf("SB-%06d", s.seq)
	s.orders[id] = &Capture{ID: id, Status: "CREATED", Amount: amount, Currency: strings.ToUpper(currency)}
	return Result{
		Outcome:         OutcomeCreated,
		ProviderOrderID: id,
		ApproveURL:      "sandbox://approve/" + id,
	}, nil
}

func (s *Sandbox) Capture(_ context.Context, providerOrderID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.orders[providerOrderID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, providerOrderID)
	}
	if c.Status != StatusCompleted {
		c.Status = StatusCompleted
		c.PayerEmail = s.PayerEmail
		c.UpdateTime = s.now().Format(time.RFC3339)
	}
	return Result{
		Outcome:         OutcomeCaptured,
		ProviderOrderID: c.ID,
		Receipt: order.PaymentResult{
			ID:           c.ID,
			Status:       c.Status,
			UpdateTime:   c.UpdateTime,
			EmailAddress: c.PayerEmail,
		},
	}, nil
}

func (s *Sandbox) Lookup(_ context.Context, providerOrderID string) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.orders[providerOrderID]
	if !ok {
		return Capture{}, fmt.Errorf("%w: %s", ErrUnknownOrder, providerOrderID)
	}
	return *c, nil
}
