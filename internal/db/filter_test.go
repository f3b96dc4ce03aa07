package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFilterBuilderChaining(t *testing.T) {
	id := primitive.NewObjectID()
	filter := NewFilter().
		Eq("conversation_id", id).
		Ne("sender", "alice").
		Lt("_id", id).
		Build()

	assert.Equal(t, bson.M{
		"conversation_id": id,
		"sender":          bson.M{"$ne": "alice"},
		"_id":             bson.M{"$lt": id},
	}, filter)
}

func TestFilterBuilderElemMatch(t *testing.T) {
	filter := NewFilter().
		ElemMatch("participants", bson.M{"user": "alice", "is_active": true}).
		Build()

	assert.Equal(t, bson.M{
		"participants": bson.M{"$elemMatch": bson.M{"user": "alice", "is_active": true}},
	}, filter)
}

func TestFilterBuilderObjectID(t *testing.T) {
	id := primitive.NewObjectID()
	filter := NewFilter().ObjectID("_id", id.Hex()).Build()
	assert.Equal(t, bson.M{"_id": id}, filter)

	// Malformed hex leaves the filter untouched.
	filter = NewFilter().ObjectID("_id", "nope").Build()
	assert.Equal(t, bson.M{}, filter)
}

func TestFilterBuilderInAndOr(t *testing.T) {
	filter := NewFilter().
		In("archived_by", []string{"alice", "bob"}).
		Or(bson.M{"type": "direct"}, bson.M{"type": "group"}).
		Build()

	assert.Equal(t, bson.M{"$in": []string{"alice", "bob"}}, filter["archived_by"])
	assert.Len(t, filter["$or"], 2)
}

func TestEmptyFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, Empty())
}
