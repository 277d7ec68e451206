package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureNotificationCollection creates the indexes of the notification
// collection. Documents are removed by the server once expires_at passes.
func EnsureNotificationCollection(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_notifications_expires_at").SetExpireAfterSeconds(0),
		},
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "type", Value: 1}, {Key: "code", Value: 1}},
			Options: options.Index().SetName("idx_notifications_product"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
