package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/techshop-api/internal/order"
)

const orderColumns = `id::text, user_id, order_items, shipping_address, payment_method, payment_result,
	items_price, shipping_price, tax_price, total_price, is_paid, paid_at, is_delivered, delivered_at,
	COALESCE(idempotency_key, ''), created_at, updated_at`

// OrderRepository implements order.Repository.
type OrderRepository struct {
	db *pgxpool.Pool
}

var _ order.Repository = (*OrderRepository)(nil)

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o                          order.Order
		items, address, receiptRaw []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &address, &o.PaymentMethod, &receiptRaw,
		&o.ItemsPrice, &o.ShippingPrice, &o.TaxPrice, &o.TotalPrice,
		&o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt,
		&o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return order.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(receiptRaw) > 0 {
		var receipt order.PaymentResult
		if err := json.Unmarshal(receiptRaw, &receipt); err != nil {
			return order.Order{}, fmt.Errorf("decode payment result: %w", err)
		}
		o.PaymentResult = &receipt
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func nullableKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

func (r *OrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return order.Order{}, err
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return order.Order{}, err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, order_items, shipping_address, payment_method,
			items_price, shipping_price, tax_price, total_price, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+orderColumns,
		uuid.New(), o.UserID, items, address, o.PaymentMethod,
		o.ItemsPrice, o.ShippingPrice, o.TaxPrice, o.TotalPrice, nullableKey(o.IdempotencyKey), o.CreatedAt, o.UpdatedAt)
	created, err := scanOrder(row)
	if isUniqueViolation(err) {
		return order.Order{}, order.ErrDuplicateKey
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return created, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (order.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

func (r *OrderRepository) findOne(ctx context.Context, query string, args ...any) (order.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *OrderRepository) List(ctx context.Context, q order.ListQuery) ([]order.Order, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	limit := any(nil)
	if q.Limit > 0 {
		limit = q.Limit
	}
	orders, err := r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	out := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id string, at time.Time, receipt order.PaymentResult) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return order.Order{}, err
	}
	paid, err := r.transition(ctx, id, `
		UPDATE orders SET is_paid = TRUE, paid_at = $2, payment_result = $3, updated_at = $2
		WHERE id = $1 AND is_paid = FALSE
		RETURNING `+orderColumns, id, at, raw)
	if isUniqueViolation(err) {
		return order.Order{}, order.ErrReceiptUsed
	}
	return paid, err
}

func (r *OrderRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	return r.transition(ctx, id, `
		UPDATE orders SET is_delivered = TRUE, delivered_at = $2, updated_at = $2
		WHERE id = $1 AND is_paid = TRUE AND is_delivered = FALSE
		RETURNING `+orderColumns, id, at)
}

// transition runs a conditional update. No row on an existing order means
// its flags no longer allow the change.
func (r *OrderRepository) transition(ctx context.Context, id, query string, args ...any) (order.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return order.Order{}, fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, order.ErrTransitionRejected
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return order.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
