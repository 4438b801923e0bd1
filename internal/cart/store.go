package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/pricing"
)

// SchemaVersion is written with every persisted value. Values saved under a
// different version are discarded on load.
const SchemaVersion = 1

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store owns the cart state. Dispatch runs the pure reducer and then writes
// the changed keys to Storage; the new state becomes visible only once the
// write succeeded.
type Store struct {
	mu      sync.Mutex
	calc    pricing.Calculator
	storage Storage
	log     zerolog.Logger
	state   State
}

// Open restores the persisted cart from storage.
func Open(calc pricing.Calculator, storage Storage, log zerolog.Logger) (*Store, error) {
	if storage == nil {
		return nil, errors.New("cart: storage is required")
	}
	s := &Store{calc: calc, storage: storage, log: log}
	restored, err := s.load()
	if err != nil {
		return nil, err
	}
	state, err := Reduce(calc, State{}, Hydrate{State: restored})
	if err != nil {
		return nil, err
	}
	s.state = state
	return s, nil
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// PaymentMethod returns the saved method or the default one.
func (s *Store) PaymentMethod() string {
	st := s.State()
	if st.PaymentMethod == "" {
		return DefaultPaymentMethod
	}
	return st.PaymentMethod
}

// Dispatch applies the action and persists the result.
func (s *Store) Dispatch(action Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Reduce(s.calc, s.state, action)
	if err != nil {
		return s.state.clone(), err
	}
	if err := s.persist(s.state, next); err != nil {
		return s.state.clone(), fmt.Errorf("cart: persist %s: %w", ActionName(action), err)
	}
	s.state = next
	s.log.Debug().Str("action", ActionName(action)).Int("items", len(next.Items)).Float64("total", next.Totals.GrandTotal).Msg("cart updated")
	return next.clone(), nil
}

func (s *Store) persist(prev, next State) error {
	if err := s.write(KeyCartItems, prev.Items, next.Items, next.Items == nil); err != nil {
		return err
	}
	if err := s.write(KeyShippingAddress, prev.ShippingAddress, next.ShippingAddress, next.ShippingAddress == nil); err != nil {
		return err
	}
	if err := s.write(KeyPaymentMethod, prev.PaymentMethod, next.PaymentMethod, next.PaymentMethod == ""); err != nil {
		return err
	}
	return s.write(KeyPendingOrder, prev.PendingOrderKey, next.PendingOrderKey, next.PendingOrderKey == "")
}

// write saves key when its value changed, or removes it when the new value is empty.
func (s *Store) write(key string, prev, next any, empty bool) error {
	before, err := json.Marshal(prev)
	if err != nil {
		return err
	}
	after, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if bytes.Equal(before, after) {
		return nil
	}
	if empty {
		return s.storage.Remove(key)
	}
	body, err := json.Marshal(envelope{Version: SchemaVersion, Data: after})
	if err != nil {
		return err
	}
	return s.storage.Save(key, body)
}

func (s *Store) load() (State, error) {
	var st State
	if err := s.read(KeyCartItems, &st.Items); err != nil {
		return State{}, err
	}
	var addr Address
	if err := s.read(KeyShippingAddress, &addr); err != nil {
		return State{}, err
	}
	if addr != (Address{}) {
		st.ShippingAddress = &addr
	}
	if err := s.read(KeyPaymentMethod, &st.PaymentMethod); err != nil {
		return State{}, err
	}
	if st.PaymentMethod != "" && !knownMethod(st.PaymentMethod) {
		s.log.Warn().Str("method", st.PaymentMethod).Msg("dropping unknown saved payment method")
		st.PaymentMethod = ""
	}
	if err := s.read(KeyPendingOrder, &st.PendingOrderKey); err != nil {
		return State{}, err
	}
	st.Items = sanitize(st.Items)
	return st, nil
}

// read decodes key into dst. Unreadable or outdated values are logged and
// removed so the next write starts clean.
func (s *Store) read(key string, dst any) error {
	raw, ok, err := s.storage.Load(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Version == 0 {
		s.log.Warn().Str("key", key).Msg("dropping unversioned cart data")
		return s.storage.Remove(key)
	}
	if env.Version != SchemaVersion {
		s.log.Warn().Str("key", key).Int("version", env.Version).Int("want", SchemaVersion).Msg("dropping cart data from another schema version")
		return s.storage.Remove(key)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("dropping corrupt cart data")
		return s.storage.Remove(key)
	}
	return nil
}

// sanitize drops restored lines that could not have been added, and keeps
// the first line per product.
func sanitize(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if it.ProductID == "" || seen[it.ProductID] || it.Quantity <= 0 || it.Price < 0 {
			continue
		}
		seen[it.ProductID] = true
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
