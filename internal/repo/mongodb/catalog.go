package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/techshop-api/internal/catalog"
)

type productDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Image        string             `bson:"image"`
	Brand        string             `bson:"brand"`
	Category     string             `bson:"category"`
	Description  string             `bson:"description"`
	Price        float64            `bson:"price"`
	CountInStock int                `bson:"countInStock"`
	Rating       float64            `bson:"rating"`
	NumReviews   int                `bson:"numReviews"`
	Featured     bool               `bson:"featured"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d productDoc) toProduct() catalog.Product {
	return catalog.Product{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Image:        d.Image,
		Brand:        d.Brand,
		Category:     d.Category,
		Description:  d.Description,
		Price:        d.Price,
		CountInStock: d.CountInStock,
		Rating:       d.Rating,
		NumReviews:   d.NumReviews,
		Featured:     d.Featured,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type categoryDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Image       string             `bson:"image"`
	Description string             `bson:"description"`
	Featured    bool               `bson:"featured"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d categoryDoc) toCategory() catalog.Category {
	return catalog.Category{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Image:       d.Image,
		Description: d.Description,
		Featured:    d.Featured,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// CatalogRepository implements catalog.Repository.
type CatalogRepository struct {
	products   *mongo.Collection
	categories *mongo.Collection
}

var _ catalog.Repository = (*CatalogRepository)(nil)

func productFilter(q catalog.ProductQuery) bson.M {
	filter := bson.M{}
	if q.Keyword != "" {
		filter["name"] = bson.M{"$regex": regexp.QuoteMeta(q.Keyword), "$options": "i"}
	}
	if q.CategoryID != "" {
		filter["category"] = q.CategoryID
	}
	return filter
}

func (r *CatalogRepository) ListProducts(ctx context.Context, q catalog.ProductQuery) ([]catalog.Product, int64, error) {
	filter := productFilter(q)
	total, err := r.products.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	opts := options.Find().SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	products, err := r.findProducts(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *CatalogRepository) FeaturedProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	return r.findProducts(ctx, bson.M{"featured": true}, options.Find().SetLimit(int64(limit)))
}

func (r *CatalogRepository) TopProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rating", Value: -1}}).SetLimit(int64(limit))
	return r.findProducts(ctx, bson.M{}, opts)
}

func (r *CatalogRepository) NewestProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	return r.findProducts(ctx, bson.M{}, opts)
}

func (r *CatalogRepository) findProducts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]catalog.Product, error) {
	cur, err := r.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	out := make([]catalog.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toProduct())
	}
	return out, nil
}

func (r *CatalogRepository) ProductByID(ctx context.Context, id string) (catalog.Product, error) {
	oid, ok := objectID(id)
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	var doc productDoc
	err := r.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("find product: %w", err)
	}
	return doc.toProduct(), nil
}

func (r *CatalogRepository) ListCategories(ctx context.Context, featuredOnly bool) ([]catalog.Category, error) {
	filter := bson.M{}
	if featuredOnly {
		filter["featured"] = true
	}
	cur, err := r.categories.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	var docs []categoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	out := make([]catalog.Category, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCategory())
	}
	return out, nil
}

func (r *CatalogRepository) CategoryByID(ctx context.Context, id string) (catalog.Category, error) {
	oid, ok := objectID(id)
	if !ok {
		return catalog.Category{}, catalog.ErrNotFound
	}
	var doc categoryDoc
	err := r.categories.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return catalog.Category{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Category{}, fmt.Errorf("find category: %w", err)
	}
	return doc.toCategory(), nil
}

func (r *CatalogRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := r.products.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	var rows []struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode category counts: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ID] = row.Count
	}
	return counts, nil
}
