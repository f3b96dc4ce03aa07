package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the engine's contracts depend on. The
// unique sparse index on direct_message_key is load-bearing: it is what
// makes resolve-or-create exactly-once under concurrent creators.
func EnsureIndexes(ctx context.Context, database *mongo.Database, conversations, messages string) error {
	collections := map[string][]mongo.IndexModel{
		conversations: {
			{
				Keys:    bson.D{{Key: "direct_message_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "participants.user", Value: 1}, {Key: "last_message_at", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "last_message_at", Value: -1}}},
		},
		messages: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender", Value: 1}, {Key: "is_read_by", Value: 1}}},
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for name, indexes := range collections {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
