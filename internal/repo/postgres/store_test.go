package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/auth"
	"github.com/noah-isme/techshop-api/internal/catalog"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/repo/postgres"
)

// openStore migrates DATABASE_TEST_URL and empties every table.
func openStore(t *testing.T) (*postgres.Store, string) {
	t.Helper()
	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}
	require.NoError(t, postgres.Migrate(url))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `TRUNCATE orders, products, categories, users`)
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	store, err := postgres.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store, url
}

func sampleOrder(user, key string) order.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return order.Order{
		UserID:          user,
		Items:           []order.LineItem{{ProductID: "p1", Name: "Headphones", Price: 60, Quantity: 2}},
		ShippingAddress: order.Address{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "PayPal",
		ItemsPrice:      120,
		TaxPrice:        18,
		TotalPrice:      138,
		IdempotencyKey:  key,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestOrderLifecycle(t *testing.T) {
	store, url := openStore(t)
	require.NoError(t, postgres.Migrate(url), "migrations are re-runnable")
	repo := store.Orders()
	ctx := context.Background()

	created, err := repo.Insert(ctx, sampleOrder("u1", "k1"))
	require.NoError(t, err)
	assert.Equal(t, 138.0, created.TotalPrice)
	require.Len(t, created.Items, 1)
	assert.Equal(t, 2, created.Items[0].Quantity)

	_, err = repo.Insert(ctx, sampleOrder("u1", "k1"))
	require.ErrorIs(t, err, order.ErrDuplicateKey)
	_, err = repo.Insert(ctx, sampleOrder("u1", ""))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, sampleOrder("u1", ""))
	require.NoError(t, err)

	found, err := repo.FindByIdempotencyKey(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.MarkDelivered(ctx, created.ID, time.Now())
	require.ErrorIs(t, err, order.ErrTransitionRejected)

	paid, err := repo.MarkPaid(ctx, created.ID, time.Now(), order.PaymentResult{ID: "PAY", Status: "COMPLETED"})
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)

	_, err = repo.MarkPaid(ctx, created.ID, time.Now(), order.PaymentResult{ID: "OTHER", Status: "COMPLETED"})
	require.ErrorIs(t, err, order.ErrTransitionRejected)

	delivered, err := repo.MarkDelivered(ctx, created.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, delivered.IsDelivered)
	assert.Equal(t, "PAY", delivered.PaymentResult.ID)

	page, total, err := repo.List(ctx, order.ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, int64(3), total)

	require.NoError(t, repo.Delete(ctx, created.ID))
	require.ErrorIs(t, repo.Delete(ctx, created.ID), order.ErrNotFound)
	_, err = repo.FindByID(ctx, "garbage")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestUsersAndCatalog(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	users := store.Users()
	u, err := users.CreateUser(ctx, auth.User{Name: "Jane", Email: "Jane@Example.com", PasswordHash: "hash", CreatedAt: time.Now(), UpdatedAt: time.Now()})
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, auth.User{Name: "Other", Email: "jane@example.com", PasswordHash: "hash", CreatedAt: time.Now(), UpdatedAt: time.Now()})
	require.ErrorIs(t, err, auth.ErrEmailTaken)
	byID, err := users.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", byID.Email)

	repo := store.Catalog()
	cats, err := repo.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, cats)
	_, err = repo.ProductByID(ctx, "nope")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	products, total, err := repo.ListProducts(ctx, catalog.ProductQuery{Keyword: "50%", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Zero(t, total)
}

func TestMarkPaidRejectsReusedReceipt(t *testing.T) {
	store, _ := openStore(t)
	repo := store.Orders()
	ctx := context.Background()

	first, err := repo.Insert(ctx, sampleOrder("u1", ""))
	require.NoError(t, err)
	second, err := repo.Insert(ctx, sampleOrder("u1", ""))
	require.NoError(t, err)

	receipt := order.PaymentResult{ID: "CAP-SHARED", Status: "COMPLETED"}
	_, err = repo.MarkPaid(ctx, first.ID, time.Now(), receipt)
	require.NoError(t, err)
	_, err = repo.MarkPaid(ctx, second.ID, time.Now(), receipt)
	require.ErrorIs(t, err, order.ErrReceiptUsed)

	stored, err := repo.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	assert.Nil(t, stored.PaymentResult)
}
