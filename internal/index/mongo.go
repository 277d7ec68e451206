package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/pkg/migrations"
)

type mongoNotification struct {
	URN        string    `bson:"_id"`
	Source     string    `bson:"source"`
	Type       string    `bson:"type"`
	Code       string    `bson:"code"`
	UpdateTime time.Time `bson:"update_time"`
	ProductURL string    `bson:"product_url"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// MongoIndex relies on a TTL index on expires_at. RemoveExpired still
// deletes eagerly because the TTL monitor runs about once a minute.
type MongoIndex struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoIndex(ctx context.Context, collection *mongo.Collection) (*MongoIndex, error) {
	if err := migrations.EnsureNotificationCollection(ctx, collection); err != nil {
		return nil, err
	}
	return &MongoIndex{collection: collection, now: time.Now}, nil
}

func (m *MongoIndex) Lookup(ctx context.Context, id product.ID) (bool, error) {
	err := m.collection.FindOne(ctx, bson.M{"_id": id.String()},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mongodb lookup failed: %w", err)
	}
	return true, nil
}

func (m *MongoIndex) Record(ctx context.Context, env *notification.Envelope) error {
	e := newEntry(env, m.now())
	doc := mongoNotification{
		URN:        e.Key,
		Source:     e.ID.Source,
		Type:       e.ID.Type,
		Code:       e.ID.Code,
		UpdateTime: e.ID.UpdateTime,
		ProductURL: e.ProductURL,
		ExpiresAt:  e.Expires,
	}

	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": e.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb record failed: %w", err)
	}
	return nil
}

func (m *MongoIndex) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("mongodb remove expired failed: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *MongoIndex) Count(ctx context.Context) (int64, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb count failed: %w", err)
	}
	return n, nil
}

func (m *MongoIndex) Close() error {
	return nil
}
