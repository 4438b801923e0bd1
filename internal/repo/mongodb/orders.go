package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/techshop-api/internal/order"
)

type lineDoc struct {
	Name    string  `bson:"name"`
	Qty     int     `bson:"qty"`
	Image   string  `bson:"image"`
	Price   float64 `bson:"price"`
	Product string  `bson:"product"`
}

type addressDoc struct {
	Address    string `bson:"address"`
	City       string `bson:"city"`
	PostalCode string `bson:"postalCode"`
	Country    string `bson:"country"`
}

type receiptDoc struct {
	ID           string `bson:"id"`
	Status       string `bson:"status"`
	UpdateTime   string `bson:"update_time"`
	EmailAddress string `bson:"email_address"`
}

type orderDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	User            string             `bson:"user"`
	OrderItems      []lineDoc          `bson:"orderItems"`
	ShippingAddress addressDoc         `bson:"shippingAddress"`
	PaymentMethod   string             `bson:"paymentMethod"`
	PaymentResult   *receiptDoc        `bson:"paymentResult,omitempty"`
	ItemsPrice      float64            `bson:"itemsPrice"`
	TaxPrice        float64            `bson:"taxPrice"`
	ShippingPrice   float64            `bson:"shippingPrice"`
	TotalPrice      float64            `bson:"totalPrice"`
	IsPaid          bool               `bson:"isPaid"`
	PaidAt          *time.Time         `bson:"paidAt,omitempty"`
	IsDelivered     bool               `bson:"isDelivered"`
	DeliveredAt     *time.Time         `bson:"deliveredAt,omitempty"`
	IdempotencyKey  string             `bson:"idempotencyKey,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func toOrderDoc(o order.Order) orderDoc {
	d := orderDoc{
		User:          o.UserID,
		OrderItems:    make([]lineDoc, 0, len(o.Items)),
		PaymentMethod: o.PaymentMethod,
		ShippingAddress: addressDoc{
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		ItemsPrice:     o.ItemsPrice,
		TaxPrice:       o.TaxPrice,
		ShippingPrice:  o.ShippingPrice,
		TotalPrice:     o.TotalPrice,
		IsPaid:         o.IsPaid,
		PaidAt:         o.PaidAt,
		IsDelivered:    o.IsDelivered,
		DeliveredAt:    o.DeliveredAt,
		IdempotencyKey: o.IdempotencyKey,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if oid, ok := objectID(o.ID); ok {
		d.ID = oid
	}
	for _, it := range o.Items {
		d.OrderItems = append(d.OrderItems, lineDoc{Name: it.Name, Qty: it.Quantity, Image: it.Image, Price: it.Price, Product: it.ProductID})
	}
	if o.PaymentResult != nil {
		d.PaymentResult = &receiptDoc{
			ID:           o.PaymentResult.ID,
			Status:       o.PaymentResult.Status,
			UpdateTime:   o.PaymentResult.UpdateTime,
			EmailAddress: o.PaymentResult.EmailAddress,
		}
	}
	return d
}

func (d orderDoc) toOrder() order.Order {
	o := order.Order{
		ID:            d.ID.Hex(),
		UserID:        d.User,
		Items:         make([]order.LineItem, 0, len(d.OrderItems)),
		PaymentMethod: d.PaymentMethod,
		ShippingAddress: order.Address{
			Address:    d.ShippingAddress.Address,
			City:       d.ShippingAddress.City,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
		},
		ItemsPrice:     d.ItemsPrice,
		TaxPrice:       d.TaxPrice,
		ShippingPrice:  d.ShippingPrice,
		TotalPrice:     d.TotalPrice,
		IsPaid:         d.IsPaid,
		PaidAt:         utcPtr(d.PaidAt),
		IsDelivered:    d.IsDelivered,
		DeliveredAt:    utcPtr(d.DeliveredAt),
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	for _, it := range d.OrderItems {
		o.Items = append(o.Items, order.LineItem{ProductID: it.Product, Name: it.Name, Image: it.Image, Price: it.Price, Quantity: it.Qty})
	}
	if d.PaymentResult != nil {
		o.PaymentResult = &order.PaymentResult{
			ID:           d.PaymentResult.ID,
			Status:       d.PaymentResult.Status,
			UpdateTime:   d.PaymentResult.UpdateTime,
			EmailAddress: d.PaymentResult.EmailAddress,
		}
	}
	return o
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// OrderRepository implements order.Repository.
type OrderRepository struct {
	coll *mongo.Collection
}

var _ order.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	doc := toOrderDoc(o)
	doc.ID = primitive.NewObjectID()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return order.Order{}, order.ErrDuplicateKey
		}
		return order.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return doc.toOrder(), nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (order.Order, error) {
	oid, ok := objectID(id)
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (order.Order, error) {
	return r.findOne(ctx, bson.M{"user": userID, "idempotencyKey": key})
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (order.Order, error) {
	var doc orderDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("find order: %w", err)
	}
	return doc.toOrder(), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.find(ctx, bson.M{"user": userID}, opts)
}

func (r *OrderRepository) List(ctx context.Context, q order.ListQuery) ([]order.Order, int64, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	orders, err := r.find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]order.Order, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]order.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toOrder())
	}
	return out, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id string, at time.Time, receipt order.PaymentResult) (order.Order, error) {
	oid, ok := objectID(id)
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	update := bson.M{"$set": bson.M{
		"isPaid": true,
		"paidAt": at,
		"paymentResult": receiptDoc{
			ID:           receipt.ID,
			Status:       receipt.Status,
			UpdateTime:   receipt.UpdateTime,
			EmailAddress: receipt.EmailAddress,
		},
		"updatedAt": at,
	}}
	paid, err := r.transition(ctx, oid, bson.M{"_id": oid, "isPaid": false}, update)
	if mongo.IsDuplicateKeyError(err) {
		return order.Order{}, order.ErrReceiptUsed
	}
	return paid, err
}

func (r *OrderRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (order.Order, error) {
	oid, ok := objectID(id)
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	update := bson.M{"$set": bson.M{"isDelivered": true, "deliveredAt": at, "updatedAt": at}}
	return r.transition(ctx, oid, bson.M{"_id": oid, "isPaid": true, "isDelivered": false}, update)
}

// transition applies update only when filter still matches. A miss on an
// existing order means its flags no longer allow the change.
func (r *OrderRepository) transition(ctx context.Context, oid primitive.ObjectID, filter, update bson.M) (order.Order, error) {
	var doc orderDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := r.coll.CountDocuments(ctx, bson.M{"_id": oid})
		if countErr != nil {
			return order.Order{}, fmt.Errorf("check order: %w", countErr)
		}
		if n == 0 {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, order.ErrTransitionRejected
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("update order: %w", err)
	}
	return doc.toOrder(), nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return order.ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return order.ErrNotFound
	}
	return nil
}
