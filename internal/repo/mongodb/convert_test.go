package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/noah-isme/techshop-api/internal/order"
)

func TestOrderDocKeepsWireFieldNames(t *testing.T) {
	paid := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	o := order.Order{
		ID:              primitive.NewObjectID().Hex(),
		UserID:          "u1",
		Items:           []order.LineItem{{ProductID: "p1", Name: "Headphones", Image: "/h.jpg", Price: 60, Quantity: 2}},
		ShippingAddress: order.Address{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "PayPal",
		PaymentResult:   &order.PaymentResult{ID: "PAY-1", Status: "COMPLETED", UpdateTime: "2024-03-01T10:00:00Z", EmailAddress: "b@example.com"},
		ItemsPrice:      120,
		TaxPrice:        18,
		TotalPrice:      138,
		IsPaid:          true,
		PaidAt:          &paid,
		CreatedAt:       paid,
		UpdatedAt:       paid,
	}

	raw, err := bson.Marshal(toOrderDoc(o))
	require.NoError(t, err)
	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	for _, key := range []string{"_id", "user", "orderItems", "shippingAddress", "paymentMethod", "paymentResult", "itemsPrice", "taxPrice", "shippingPrice", "totalPrice", "isPaid", "paidAt", "isDelivered", "createdAt"} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "idempotencyKey")
	assert.NotContains(t, m, "deliveredAt")
	items := m["orderItems"].(bson.A)
	assert.EqualValues(t, 2, items[0].(bson.M)["qty"])

	var back orderDoc
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, o, back.toOrder())
}

func TestObjectIDRejectsMalformedIDs(t *testing.T) {
	_, ok := objectID("not-a-hex-id")
	assert.False(t, ok)

	oid := primitive.NewObjectID()
	got, ok := objectID(oid.Hex())
	assert.True(t, ok)
	assert.Equal(t, oid, got)
}
