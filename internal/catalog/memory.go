package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	products   []Product
	categories []Category
}

// NewMemoryRepository returns a repository holding the given records.
func NewMemoryRepository(products []Product, categories []Category) *MemoryRepository {
	return &MemoryRepository{
		products:   append([]Product(nil), products...),
		categories: append([]Category(nil), categories...),
	}
}

func (m *MemoryRepository) ListProducts(_ context.Context, q ProductQuery) ([]Product, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keyword := strings.ToLower(q.Keyword)
	var matched []Product
	for _, p := range m.products {
		if keyword != "" && !strings.Contains(strings.ToLower(p.Name), keyword) {
			continue
		}
		if q.CategoryID != "" && p.Category != q.CategoryID {
			continue
		}
		matched = append(matched, p)
	}
	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []Product{}, total, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return append([]Product(nil), matched[q.Offset:end]...), total, nil
}

func (m *MemoryRepository) FeaturedProducts(_ context.Context, limit int) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Product
	for _, p := range m.products {
		if p.Featured {
			out = append(out, p)
		}
	}
	return head(out, limit), nil
}

func (m *MemoryRepository) TopProducts(_ context.Context, limit int) ([]Product, error) {
	return m.sorted(limit, func(a, b Product) bool { return a.Rating > b.Rating }), nil
}

func (m *MemoryRepository) NewestProducts(_ context.Context, limit int) ([]Product, error) {
	return m.sorted(limit, func(a, b Product) bool { return a.CreatedAt.After(b.CreatedAt) }), nil
}

func (m *MemoryRepository) sorted(limit int, less func(a, b Product) bool) []Product {
	m.mu.RLock()
	out := append([]Product(nil), m.products...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return head(out, limit)
}

func (m *MemoryRepository) ProductByID(_ context.Context, id string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func (m *MemoryRepository) ListCategories(_ context.Context, featuredOnly bool) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		if featuredOnly && !c.Featured {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryRepository) CategoryByID(_ context.Context, id string) (Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return Category{}, ErrNotFound
}

func (m *MemoryRepository) CountByCategory(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int64, len(m.categories))
	for _, p := range m.products {
		counts[p.Category]++
	}
	return counts, nil
}

func head(items []Product, limit int) []Product {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		return []Product{}
	}
	return items
}
