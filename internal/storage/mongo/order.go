package mongo

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/pizza-kart/internal/domain/order"
)

// CollectionName is the collection holding order documents.
const CollectionName = "orders"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on a MongoDB collection.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository returns a repository over the orders collection of db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the indexes backing the phone and date queries.
func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customerPhone", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating order indexes: %w", err)
	}
	return nil
}

// storedOrder is an order as read from the collection. Timestamps are kept
// raw so that documents written by other clients still decode.
type storedOrder struct {
	ID          string `bson:"_id"`
	order.Order `bson:",inline"`
	CreatedAt   any `bson:"createdAt"`
	UpdatedAt   any `bson:"updatedAt"`
}

func (s storedOrder) toOrder() order.Order {
	o := s.Order
	o.ID = s.ID
	o.CreatedAt = order.FormatTimestamp(s.CreatedAt)
	o.UpdatedAt = order.FormatTimestamp(s.UpdatedAt)
	return o
}

// Create inserts the order document under the record id.
func (r *OrderRepository) Create(ctx context.Context, rec order.Record) error {
	doc := maps.Clone(rec.Doc)
	doc["_id"] = rec.ID

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting order %q: %w", rec.ID, err)
	}
	return nil
}

// Get returns order.ErrNotFound when no document has the id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var s storedOrder
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	o := s.toOrder()
	return &o, nil
}

// ListByPhone returns the customer's orders, newest first.
func (r *OrderRepository) ListByPhone(ctx context.Context, phone string) ([]order.Order, error) {
	return r.find(ctx, bson.M{"customerPhone": phone})
}

// ListCreatedBetween returns orders created in [from, to], newest first.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]order.Order, error) {
	created := bson.M{"$gte": from}
	if !to.IsZero() {
		created["$lte"] = to
	}
	return r.find(ctx, bson.M{"createdAt": created})
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M) ([]order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer cursor.Close(ctx)

	var stored []storedOrder
	if err := cursor.All(ctx, &stored); err != nil {
		return nil, fmt.Errorf("decoding orders: %w", err)
	}

	orders := make([]order.Order, len(stored))
	for i, s := range stored {
		orders[i] = s.toOrder()
	}
	return orders, nil
}

// Update sets the patched fields. It returns order.ErrNotFound when no
// document matched.
func (r *OrderRepository) Update(ctx context.Context, id string, c order.Change) error {
	fields := maps.Clone(c.Fields)
	if fields == nil {
		fields = order.Document{}
	}
	fields["updatedAt"] = c.UpdatedAt

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return order.ErrNotFound
	}
	return nil
}
