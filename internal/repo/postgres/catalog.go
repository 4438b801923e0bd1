package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/techshop-api/internal/catalog"
)

const productColumns = `id::text, name, image, brand, COALESCE(category_id::text, ''), description,
	price, count_in_stock, rating, num_reviews, featured, created_at, updated_at`

const categoryColumns = `id::text, name, image, description, featured, created_at, updated_at`

// CatalogRepository implements catalog.Repository.
type CatalogRepository struct {
	db *pgxpool.Pool
}

var _ catalog.Repository = (*CatalogRepository)(nil)

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Image, &p.Brand, &p.Category, &p.Description,
		&p.Price, &p.CountInStock, &p.Rating, &p.NumReviews, &p.Featured, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanCategory(row pgx.Row) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.Name, &c.Image, &c.Description, &c.Featured, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// escapeLike quotes the LIKE wildcards in a user keyword.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *CatalogRepository) ListProducts(ctx context.Context, q catalog.ProductQuery) ([]catalog.Product, int64, error) {
	var (
		where []string
		args  []any
	)
	if q.Keyword != "" {
		args = append(args, "%"+escapeLike(q.Keyword)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if q.CategoryID != "" {
		if !validID(q.CategoryID) {
			return []catalog.Product{}, 0, nil
		}
		args = append(args, q.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	limit := any(nil)
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit, q.Offset)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		productColumns, clause, len(args)-1, len(args))
	products, err := r.products(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *CatalogRepository) FeaturedProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	return r.products(ctx, `SELECT `+productColumns+` FROM products WHERE featured ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *CatalogRepository) TopProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	return r.products(ctx, `SELECT `+productColumns+` FROM products ORDER BY rating DESC LIMIT $1`, limit)
}

func (r *CatalogRepository) NewestProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	return r.products(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *CatalogRepository) products(ctx context.Context, query string, args ...any) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	out := []catalog.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) ProductByID(ctx context.Context, id string) (catalog.Product, error) {
	if !validID(id) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("find product: %w", err)
	}
	return p, nil
}

func (r *CatalogRepository) ListCategories(ctx context.Context, featuredOnly bool) ([]catalog.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	if featuredOnly {
		query += ` WHERE featured`
	}
	rows, err := r.db.Query(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	out := []catalog.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) CategoryByID(ctx context.Context, id string) (catalog.Category, error) {
	if !validID(id) {
		return catalog.Category{}, catalog.ErrNotFound
	}
	c, err := scanCategory(r.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Category{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Category{}, fmt.Errorf("find category: %w", err)
	}
	return c, nil
}

func (r *CatalogRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT category_id::text, COUNT(*) FROM products WHERE category_id IS NOT NULL GROUP BY category_id`)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
