package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"messaging-service/internal/apperr"
	"messaging-service/internal/db"
	"messaging-service/internal/model"
)

// ConversationRepository owns conversation documents. Every mutation is a
// single-document atomic operator; the unique sparse index on
// direct_message_key is part of the Create contract, not an implementation
// detail: Create returns a Conflict kind when the key already exists.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error)
	FindByDirectKey(ctx context.Context, key string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)

	// UpdateAggregateOnSend bumps message_count and refreshes the cached
	// last-message fields in one atomic update. The increment is
	// unconditional; the cached fields only move forward in _id order, so
	// out-of-order aggregate updates from concurrent sends cannot leave
	// the cache naming an older message.
	UpdateAggregateOnSend(ctx context.Context, conversationID, messageID primitive.ObjectID, preview string, at time.Time) error

	AppendParticipant(ctx context.Context, conversationID primitive.ObjectID, participant model.Participant) (bool, error)
	ReactivateParticipant(ctx context.Context, conversationID primitive.ObjectID, userID string, role string) (bool, error)
	DeactivateParticipant(ctx context.Context, conversationID primitive.ObjectID, userID string, leftAt time.Time) (bool, error)

	Rename(ctx context.Context, conversationID primitive.ObjectID, name string) error
	SetArchived(ctx context.Context, conversationID primitive.ObjectID, userID string, archived bool) error
	UnarchiveForUsers(ctx context.Context, conversationID primitive.ObjectID, userIDs []string) error
	PinMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error
	UnpinMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error
}

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

func NewConversationRepository(repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	result, err := r.mongoRepo.Create(ctx, *conversation)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("conversation create lost uniqueness race",
				zap.String("direct_message_key", conversation.DirectMessageKey),
			)
			return nil, apperr.Conflict("conversation with key %q already exists", conversation.DirectMessageKey)
		}
		r.logger.Error("failed to insert conversation", zap.Error(err))
		return nil, apperr.Internal(err, "insert conversation")
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conversation.ID = oid
	}

	r.logger.Info("conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("type", conversation.Type),
	)
	return conversation, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error) {
	if id.IsZero() {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("conversation %s not found", id.Hex())
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", id.Hex()),
			zap.Error(err),
		)
		return nil, apperr.Internal(err, "fetch conversation")
	}
	return conversation, nil
}

func (r *conversationRepository) FindByDirectKey(ctx context.Context, key string) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("type", model.ConversationDirect).
		Eq("direct_message_key", key).
		Build()

	conversation, err := r.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("direct conversation for key %q not found", key)
		}
		r.logger.Error("failed to fetch conversation by key", zap.String("key", key), zap.Error(err))
		return nil, apperr.Internal(err, "fetch conversation by key")
	}
	return conversation, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ElemMatch("participants", bson.M{"user": userID, "is_active": true}).
		Ne("archived_by", userID).
		Build()

	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	conversations, err := r.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to list conversations", zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.Internal(err, "list conversations")
	}

	r.logger.Debug("conversations listed",
		zap.String("user_id", userID),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}

// aggregateOnSendUpdate builds the pipeline behind UpdateAggregateOnSend.
// The counter increment is unconditional; the cached last-message triple is
// replaced only when the incoming message is newer in _id order. Insert and
// aggregate update are separate round-trips, so two senders' aggregate
// updates can land in either order; the condition makes the triple converge
// on the message with the greatest insertion order no matter the
// interleaving.
func aggregateOnSendUpdate(messageID primitive.ObjectID, preview string, at time.Time) bson.A {
	isNewer := bson.M{"$lt": bson.A{
		bson.M{"$ifNull": bson.A{"$last_message", primitive.NilObjectID}},
		messageID,
	}}
	return bson.A{
		bson.M{"$set": bson.M{
			"message_count":        bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$message_count", 0}}, 1}},
			"updated_at":           at,
			"last_message":         bson.M{"$cond": bson.A{isNewer, messageID, "$last_message"}},
			"last_message_content": bson.M{"$cond": bson.A{isNewer, preview, "$last_message_content"}},
			"last_message_at":      bson.M{"$cond": bson.A{isNewer, at, "$last_message_at"}},
		}},
	}
}

// UpdateAggregateOnSend bumps message_count and refreshes the cached
// last-message fields in one atomic pipeline update, so N concurrent sends
// always account for exactly N increments and the cache always names the
// newest message.
func (r *conversationRepository) UpdateAggregateOnSend(ctx context.Context, conversationID, messageID primitive.ObjectID, preview string, at time.Time) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := aggregateOnSendUpdate(messageID, preview, at)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return err
			}
			r.logger.Warn("retrying aggregate update",
				zap.String("conversation_id", conversationID.Hex()),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := r.mongoRepo.UpdateRaw(ctx, bson.M{"_id": conversationID}, update)
		if err == nil {
			if result.MatchedCount == 0 {
				return apperr.NotFound("conversation %s not found", conversationID.Hex())
			}
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	r.logger.Error("failed to update conversation aggregate",
		zap.String("conversation_id", conversationID.Hex()),
		zap.Error(lastErr),
	)
	return apperr.Internal(lastErr, "update conversation aggregate")
}

// AppendParticipant pushes a new membership record, guarded so a concurrent
// append for the same user cannot duplicate it. Returns false when a record
// for the user already exists (active or not).
func (r *conversationRepository) AppendParticipant(ctx context.Context, conversationID primitive.ObjectID, participant model.Participant) (bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":               conversationID,
		"participants.user": bson.M{"$ne": participant.User},
	}
	update := bson.M{
		"$push": bson.M{"participants": participant},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := r.mongoRepo.UpdateRaw(ctx, filter, update)
	if err != nil {
		r.logger.Error("failed to append participant",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", participant.User),
			zap.Error(err),
		)
		return false, apperr.Internal(err, "append participant")
	}
	return result.ModifiedCount > 0, nil
}

// ReactivateParticipant flips an inactive membership record back to active
// and clears left_at. Returns false when no inactive record matched.
func (r *conversationRepository) ReactivateParticipant(ctx context.Context, conversationID primitive.ObjectID, userID string, role string) (bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := bson.M{"_id": conversationID}
	update := bson.M{
		"$set": bson.M{
			"participants.$[p].is_active": true,
			"participants.$[p].role":      role,
			"updated_at":                  time.Now().UTC(),
		},
		"$unset": bson.M{"participants.$[p].left_at": ""},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.user": userID, "p.is_active": false}},
	})

	result, err := r.mongoRepo.UpdateRaw(ctx, filter, update, opts)
	if err != nil {
		r.logger.Error("failed to reactivate participant",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false, apperr.Internal(err, "reactivate participant")
	}
	return result.ModifiedCount > 0, nil
}

// DeactivateParticipant marks an active membership inactive and stamps
// left_at. A user who already left does not match the array filter, so the
// call is a no-op that preserves the original left_at.
func (r *conversationRepository) DeactivateParticipant(ctx context.Context, conversationID primitive.ObjectID, userID string, leftAt time.Time) (bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := bson.M{"_id": conversationID}
	update := bson.M{
		"$set": bson.M{
			"participants.$[p].is_active": false,
			"participants.$[p].left_at":   leftAt,
			"updated_at":                  time.Now().UTC(),
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"p.user": userID, "p.is_active": true}},
	})

	result, err := r.mongoRepo.UpdateRaw(ctx, filter, update, opts)
	if err != nil {
		r.logger.Error("failed to deactivate participant",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false, apperr.Internal(err, "deactivate participant")
	}
	return result.ModifiedCount > 0, nil
}

func (r *conversationRepository) Rename(ctx context.Context, conversationID primitive.ObjectID, name string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.Update(ctx, bson.M{"_id": conversationID}, bson.M{
		"name":       name,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("failed to rename conversation",
			zap.String("conversation_id", conversationID.Hex()),
			zap.Error(err),
		)
		return apperr.Internal(err, "rename conversation")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("conversation %s not found", conversationID.Hex())
	}
	return nil
}

// SetArchived hides or reveals the conversation for one user only.
// $addToSet / $pull keep the operation idempotent.
func (r *conversationRepository) SetArchived(ctx context.Context, conversationID primitive.ObjectID, userID string, archived bool) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var update bson.M
	if archived {
		update = bson.M{"$addToSet": bson.M{"archived_by": userID}}
	} else {
		update = bson.M{"$pull": bson.M{"archived_by": userID}}
	}

	result, err := r.mongoRepo.UpdateRaw(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		r.logger.Error("failed to update archive state",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return apperr.Internal(err, "update archive state")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("conversation %s not found", conversationID.Hex())
	}
	return nil
}

func (r *conversationRepository) UnarchiveForUsers(ctx context.Context, conversationID primitive.ObjectID, userIDs []string) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"$pull": bson.M{"archived_by": bson.M{"$in": userIDs}}}
	if _, err := r.mongoRepo.UpdateRaw(ctx, bson.M{"_id": conversationID}, update); err != nil {
		r.logger.Error("failed to unarchive conversation",
			zap.String("conversation_id", conversationID.Hex()),
			zap.Error(err),
		)
		return apperr.Internal(err, "unarchive conversation")
	}
	return nil
}

func (r *conversationRepository) PinMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"$addToSet": bson.M{"pinned_messages": messageID}}
	result, err := r.mongoRepo.UpdateRaw(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return apperr.Internal(err, "pin message")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("conversation %s not found", conversationID.Hex())
	}
	return nil
}

func (r *conversationRepository) UnpinMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"$pull": bson.M{"pinned_messages": messageID}}
	result, err := r.mongoRepo.UpdateRaw(ctx, bson.M{"_id": conversationID}, update)
	if err != nil {
		return apperr.Internal(err, "unpin message")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("conversation %s not found", conversationID.Hex())
	}
	return nil
}
