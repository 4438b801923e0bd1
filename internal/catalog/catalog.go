package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/techshop-api/internal/common"
)

// ErrNotFound is returned for unknown or malformed product and category ids.
var ErrNotFound = errors.New("catalog: not found")

// Product is a sellable item. Category holds the category id.
type Product struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Image        string    `json:"image"`
	Brand        string    `json:"brand"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	CountInStock int       `json:"countInStock"`
	Rating       float64   `json:"rating"`
	NumReviews   int       `json:"numReviews"`
	Featured     bool      `json:"featured"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Category groups products.
type Category struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CategorySummary is a category with the number of products in it.
type CategorySummary struct {
	Category
	ProductCount int64 `json:"productCount"`
}

// ProductPage is one page of a product search.
type ProductPage struct {
	Products []Product `json:"products"`
	common.Page
}

// ProductQuery filters a product listing. Keyword matches the product name
// case-insensitively.
type ProductQuery struct {
	Keyword    string
	CategoryID string
	Offset     int
	Limit      int
}

// Repository reads the catalog.
type Repository interface {
	ListProducts(ctx context.Context, q ProductQuery) ([]Product, int64, error)
	FeaturedProducts(ctx context.Context, limit int) ([]Product, error)
	TopProducts(ctx context.Context, limit int) ([]Product, error)
	NewestProducts(ctx context.Context, limit int) ([]Product, error)
	ProductByID(ctx context.Context, id string) (Product, error)
	ListCategories(ctx context.Context, featuredOnly bool) ([]Category, error)
	CategoryByID(ctx context.Context, id string) (Category, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
}
