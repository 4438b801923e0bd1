package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/common"
)

const (
	featuredLimit = 8
	topLimit      = 3
	newestLimit   = 8
)

// Service answers catalog reads through a Redis read-through cache.
type Service struct {
	repo     Repository
	cache    *Cache
	pageSize int
	log      zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo     Repository
	Cache    *Cache
	PageSize int
	Logger   zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("catalog: repository is required")
	}
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 12
	}
	return &Service{repo: cfg.Repo, cache: cfg.Cache, pageSize: pageSize, log: cfg.Logger}, nil
}

// PageSize is the default listing size.
func (s *Service) PageSize() int { return s.pageSize }

// Products searches products by keyword, one page at a time.
func (s *Service) Products(ctx context.Context, keyword string, page, size int) (ProductPage, error) {
	return s.productPage(ctx, ProductQuery{Keyword: strings.TrimSpace(keyword)}, page, size)
}

// ProductsByCategory lists the products of one category.
func (s *Service) ProductsByCategory(ctx context.Context, categoryID string, page, size int) (ProductPage, error) {
	if _, err := s.Category(ctx, categoryID); err != nil {
		return ProductPage{}, err
	}
	return s.productPage(ctx, ProductQuery{CategoryID: categoryID}, page, size)
}

func (s *Service) productPage(ctx context.Context, q ProductQuery, page, size int) (ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.pageSize
	}
	q.Offset = (page - 1) * size
	q.Limit = size
	key := fmt.Sprintf("catalog:products:%s:%s:%d:%d", url.QueryEscape(q.Keyword), q.CategoryID, page, size)
	return cached(ctx, s, key, func() (ProductPage, error) {
		items, total, err := s.repo.ListProducts(ctx, q)
		if err != nil {
			return ProductPage{}, err
		}
		if items == nil {
			items = []Product{}
		}
		return ProductPage{Products: items, Page: common.NewPage(page, size, total)}, nil
	})
}

// Featured lists products flagged as featured.
func (s *Service) Featured(ctx context.Context) ([]Product, error) {
	return cached(ctx, s, "catalog:products:featured", func() ([]Product, error) {
		return nonNil(s.repo.FeaturedProducts(ctx, featuredLimit))
	})
}

// Top lists the best rated products.
func (s *Service) Top(ctx context.Context) ([]Product, error) {
	return cached(ctx, s, "catalog:products:top", func() ([]Product, error) {
		return nonNil(s.repo.TopProducts(ctx, topLimit))
	})
}

// Newest lists the most recently added products.
func (s *Service) Newest(ctx context.Context) ([]Product, error) {
	return cached(ctx, s, "catalog:products:new", func() ([]Product, error) {
		return nonNil(s.repo.NewestProducts(ctx, newestLimit))
	})
}

// Product returns one product.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, ErrNotFound
	}
	return cached(ctx, s, "catalog:product:"+id, func() (Product, error) {
		return s.repo.ProductByID(ctx, id)
	})
}

// Categories lists every category with its product count.
func (s *Service) Categories(ctx context.Context) ([]CategorySummary, error) {
	return cached(ctx, s, "catalog:categories", func() ([]CategorySummary, error) {
		cats, err := s.repo.ListCategories(ctx, false)
		if err != nil {
			return nil, err
		}
		counts, err := s.repo.CountByCategory(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]CategorySummary, 0, len(cats))
		for _, c := range cats {
			out = append(out, CategorySummary{Category: c, ProductCount: counts[c.ID]})
		}
		return out, nil
	})
}

// FeaturedCategories lists categories flagged as featured.
func (s *Service) FeaturedCategories(ctx context.Context) ([]Category, error) {
	return cached(ctx, s, "catalog:categories:featured", func() ([]Category, error) {
		cats, err := s.repo.ListCategories(ctx, true)
		if err != nil {
			return nil, err
		}
		if cats == nil {
			cats = []Category{}
		}
		return cats, nil
	})
}

// Category returns one category.
func (s *Service) Category(ctx context.Context, id string) (Category, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Category{}, ErrNotFound
	}
	return cached(ctx, s, "catalog:category:"+id, func() (Category, error) {
		return s.repo.CategoryByID(ctx, id)
	})
}

func nonNil(items []Product, err error) ([]Product, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Product{}
	}
	return items, nil
}
