package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAggregateOnSendUpdateCountsUnconditionally(t *testing.T) {
	messageID := primitive.NewObjectID()
	at := time.Now().UTC()

	pipeline := aggregateOnSendUpdate(messageID, "hello", at)
	require.Len(t, pipeline, 1)

	set := pipeline[0].(bson.M)["$set"].(bson.M)

	// The counter must increment on every send, with no condition attached:
	// dropping an increment because another sender's update landed first
	// would lose it forever.
	count := set["message_count"].(bson.M)
	assert.Contains(t, count, "$add")
	assert.NotContains(t, count, "$cond")

	assert.Equal(t, at, set["updated_at"])
}

func TestAggregateOnSendUpdateOnlyMovesForward(t *testing.T) {
	messageID := primitive.NewObjectID()
	at := time.Now().UTC()

	pipeline := aggregateOnSendUpdate(messageID, "hello", at)
	set := pipeline[0].(bson.M)["$set"].(bson.M)

	isNewer := bson.M{"$lt": bson.A{
		bson.M{"$ifNull": bson.A{"$last_message", primitive.NilObjectID}},
		messageID,
	}}

	// Each cached field is guarded by the same _id-order condition and
	// keeps its stored value when the incoming message is older. With two
	// concurrent sends the aggregate updates can land in either order;
	// the guard makes the cache converge on the message with the greater
	// insertion order.
	assert.Equal(t, bson.M{"$cond": bson.A{isNewer, messageID, "$last_message"}}, set["last_message"])
	assert.Equal(t, bson.M{"$cond": bson.A{isNewer, "hello", "$last_message_content"}}, set["last_message_content"])
	assert.Equal(t, bson.M{"$cond": bson.A{isNewer, at, "$last_message_at"}}, set["last_message_at"])
}

func TestAggregateOnSendUpdateFirstMessage(t *testing.T) {
	messageID := primitive.NewObjectID()

	pipeline := aggregateOnSendUpdate(messageID, "hello", time.Now().UTC())
	set := pipeline[0].(bson.M)["$set"].(bson.M)

	// A conversation that never saw a message has no last_message; the
	// guard's $ifNull default is the zero ObjectID, which orders before
	// every real id, so the first send always wins.
	cond := set["last_message"].(bson.M)["$cond"].(bson.A)
	guard := cond[0].(bson.M)["$lt"].(bson.A)
	assert.Equal(t, bson.M{"$ifNull": bson.A{"$last_message", primitive.NilObjectID}}, guard[0])
	assert.Equal(t, messageID, guard[1])
}
