package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/catalog"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixtures() ([]catalog.Product, []catalog.Category) {
	cats := []catalog.Category{
		{ID: "c1", Name: "Audio", Featured: true},
		{ID: "c2", Name: "Laptops"},
		{ID: "c3", Name: "Cameras"},
	}
	products := []catalog.Product{
		{ID: "p1", Name: "Wireless Headphones", Category: "c1", Price: 60, CountInStock: 5, Rating: 4.5, Featured: true, CreatedAt: base},
		{ID: "p2", Name: "Studio Headphones", Category: "c1", Price: 120, CountInStock: 2, Rating: 3.9, CreatedAt: base.Add(time.Hour)},
		{ID: "p3", Name: "Ultrabook", Category: "c2", Price: 999, Rating: 4.9, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "p4", Name: "Gaming Laptop", Category: "c2", Price: 1499, Rating: 4.1, Featured: true, CreatedAt: base.Add(3 * time.Hour)},
	}
	return products, cats
}

// countingRepo counts repository reads to observe cache hits.
type countingRepo struct {
	*catalog.MemoryRepository
	productReads int
}

func (c *countingRepo) ProductByID(ctx context.Context, id string) (catalog.Product, error) {
	c.productReads++
	return c.MemoryRepository.ProductByID(ctx, id)
}

func newRouter(t *testing.T, cache *catalog.Cache) (http.Handler, *countingRepo) {
	t.Helper()
	repo := &countingRepo{MemoryRepository: catalog.NewMemoryRepository(fixtures())}
	svc, err := catalog.NewService(catalog.ServiceConfig{Repo: repo, Cache: cache, PageSize: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)
	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	r := chi.NewRouter()
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.Products)
		r.Get("/featured", h.Featured)
		r.Get("/top", h.Top)
		r.Get("/new", h.Newest)
		r.Get("/category/{categoryId}", h.ProductsByCategory)
		r.Get("/{id}", h.Product)
	})
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.Categories)
		r.Get("/featured", h.FeaturedCategories)
		r.Get("/{id}", h.Category)
	})
	return r, repo
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestProductSearchPaging(t *testing.T) {
	h, _ := newRouter(t, nil)

	var page catalog.ProductPage
	require.Equal(t, http.StatusOK, get(t, h, "/api/products?keyword=HEADPHONES", &page))
	require.Len(t, page.Products, 2)
	require.Equal(t, 1, page.Pages)

	require.Equal(t, http.StatusOK, get(t, h, "/api/products?pageNumber=2", &page))
	require.Equal(t, 2, page.Page.Page)
	require.Equal(t, 2, page.Pages)
	require.Equal(t, int64(4), page.Total)
	require.Equal(t, "p3", page.Products[0].ID)
}

func TestProductCollections(t *testing.T) {
	h, _ := newRouter(t, nil)

	var featured, top, newest []catalog.Product
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/featured", &featured))
	require.Len(t, featured, 2)
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/top", &top))
	require.Equal(t, []string{"p3", "p1", "p4"}, ids(top))
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/new", &newest))
	require.Equal(t, "p4", newest[0].ID)
}

func TestProductsByCategory(t *testing.T) {
	h, _ := newRouter(t, nil)

	var page catalog.ProductPage
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/category/c2", &page))
	require.Equal(t, []string{"p3", "p4"}, ids(page.Products))
	require.Equal(t, http.StatusNotFound, get(t, h, "/api/products/category/nope", nil))
}

func TestCategoriesWithCounts(t *testing.T) {
	h, _ := newRouter(t, nil)

	var cats []catalog.CategorySummary
	require.Equal(t, http.StatusOK, get(t, h, "/api/categories", &cats))
	require.Len(t, cats, 3)
	require.Equal(t, int64(2), cats[0].ProductCount)
	require.Equal(t, int64(0), cats[2].ProductCount)

	var featured []catalog.Category
	require.Equal(t, http.StatusOK, get(t, h, "/api/categories/featured", &featured))
	require.Len(t, featured, 1)

	var c catalog.Category
	require.Equal(t, http.StatusOK, get(t, h, "/api/categories/c2", &c))
	require.Equal(t, "Laptops", c.Name)
}

func TestNotFoundMessages(t *testing.T) {
	h, _ := newRouter(t, nil)
	for path, msg := range map[string]string{
		"/api/products/missing":   "Product not found",
		"/api/categories/missing": "Category not found",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		var body struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, msg, body.Message)
	}
}

func TestProductReadThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h, repo := newRouter(t, catalog.NewCache(client, time.Minute))

	var p catalog.Product
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/p1", &p))
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/p1", &p))
	require.Equal(t, "Wireless Headphones", p.Name)
	require.Equal(t, 1, repo.productReads)
	require.True(t, mr.Exists("catalog:product:p1"))

	mr.FastForward(2 * time.Minute)
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/p1", &p))
	require.Equal(t, 2, repo.productReads)
}

func TestCacheFailureFallsBackToRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h, repo := newRouter(t, catalog.NewCache(client, time.Minute))
	mr.Close()

	var p catalog.Product
	require.Equal(t, http.StatusOK, get(t, h, "/api/products/p2", &p))
	require.Equal(t, "p2", p.ID)
	require.Equal(t, 1, repo.productReads)
}

func ids(ps []catalog.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}
