package cart_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/cart"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

func openStore(t *testing.T, storage cart.Storage) *cart.Store {
	t.Helper()
	s, err := cart.Open(pricing.Default(), storage, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestStoreRoundTripThroughFiles(t *testing.T) {
	storage := cart.FileStorage{Dir: t.TempDir()}
	s := openStore(t, storage)

	addr := cart.Address{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	_, err := s.Dispatch(cart.AddItem{Item: headphones(2)})
	require.NoError(t, err)
	_, err = s.Dispatch(cart.SetShippingAddress{Address: addr})
	require.NoError(t, err)
	_, err = s.Dispatch(cart.SetPaymentMethod{Method: cart.MethodCreditCard})
	require.NoError(t, err)
	_, err = s.Dispatch(cart.BeginSubmission{Key: "key-1"})
	require.NoError(t, err)

	reopened := openStore(t, storage)
	st := reopened.State()
	require.Equal(t, []cart.Item{headphones(2)}, st.Items)
	require.Equal(t, addr, *st.ShippingAddress)
	require.Equal(t, cart.MethodCreditCard, reopened.PaymentMethod())
	require.Equal(t, "key-1", st.PendingOrderKey)
	require.Equal(t, 138.0, st.Totals.GrandTotal)
}

func TestStoreKeepsValuesUnderSeparateKeys(t *testing.T) {
	storage := cart.NewMemoryStorage()
	s := openStore(t, storage)
	_, err := s.Dispatch(cart.SetPaymentMethod{Method: cart.MethodStripe})
	require.NoError(t, err)

	_, ok, err := storage.Load(cart.KeyPaymentMethod)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = storage.Load(cart.KeyCartItems)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Dispatch(cart.AddItem{Item: headphones(1)})
	require.NoError(t, err)
	_, err = s.Dispatch(cart.Clear{})
	require.NoError(t, err)

	_, ok, _ = storage.Load(cart.KeyCartItems)
	require.False(t, ok)
	_, ok, _ = storage.Load(cart.KeyPaymentMethod)
	require.True(t, ok)
}

func TestStoreDefaultsPaymentMethod(t *testing.T) {
	s := openStore(t, cart.NewMemoryStorage())
	require.Equal(t, cart.MethodPayPal, s.PaymentMethod())
}

func TestStoreDropsOtherSchemaVersions(t *testing.T) {
	storage := cart.NewMemoryStorage()
	items, err := json.Marshal([]cart.Item{headphones(1)})
	require.NoError(t, err)
	old, err := json.Marshal(map[string]any{"version": cart.SchemaVersion + 1, "data": json.RawMessage(items)})
	require.NoError(t, err)
	require.NoError(t, storage.Save(cart.KeyCartItems, old))
	require.NoError(t, storage.Save(cart.KeyShippingAddress, []byte(`{"address":"legacy"}`)))
	require.NoError(t, storage.Save(cart.KeyPaymentMethod, []byte(`not json`)))

	s := openStore(t, storage)
	st := s.State()
	require.True(t, st.Empty())
	require.Nil(t, st.ShippingAddress)
	require.Equal(t, cart.MethodPayPal, s.PaymentMethod())

	for _, key := range []string{cart.KeyCartItems, cart.KeyShippingAddress, cart.KeyPaymentMethod} {
		_, ok, err := storage.Load(key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}
}

func TestStoreDropsInvalidRestoredLines(t *testing.T) {
	storage := cart.NewMemoryStorage()
	lines := []cart.Item{headphones(1), headphones(3), {ProductID: "p2", Price: 5, Quantity: 0}}
	data, err := json.Marshal(lines)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"version": cart.SchemaVersion, "data": json.RawMessage(data)})
	require.NoError(t, err)
	require.NoError(t, storage.Save(cart.KeyCartItems, body))

	st := openStore(t, storage).State()
	require.Equal(t, []cart.Item{headphones(1)}, st.Items)
}

type failingStorage struct {
	*cart.MemoryStorage
	fail bool
}

func (f *failingStorage) Save(key string, data []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryStorage.Save(key, data)
}

func TestStoreKeepsStateWhenPersistFails(t *testing.T) {
	storage := &failingStorage{MemoryStorage: cart.NewMemoryStorage()}
	s := openStore(t, storage)
	_, err := s.Dispatch(cart.AddItem{Item: headphones(1)})
	require.NoError(t, err)

	storage.fail = true
	st, err := s.Dispatch(cart.AddItem{Item: headphones(4)})
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, st.Items[0].Quantity)
	require.Equal(t, 1, s.State().Items[0].Quantity)
}

func TestStoreRejectsInvalidActionWithoutWriting(t *testing.T) {
	storage := cart.NewMemoryStorage()
	s := openStore(t, storage)
	_, err := s.Dispatch(cart.AddItem{Item: headphones(9)})
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
	_, ok, _ := storage.Load(cart.KeyCartItems)
	require.False(t, ok)
}

func TestFileStorageRejectsUnsafeKeys(t *testing.T) {
	storage := cart.FileStorage{Dir: t.TempDir()}
	require.Error(t, storage.Save("../escape", []byte("x")))
	_, _, err := storage.Load("a/b")
	require.Error(t, err)
}
