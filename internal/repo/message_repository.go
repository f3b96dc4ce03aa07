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

// MessageRepository owns message documents. Mutations that race with other
// writers (read receipts, reaction buckets) use atomic set-add/pull
// operators or pipeline updates; plain read-modify-write of a whole message
// is never performed.
type MessageRepository interface {
	Insert(ctx context.Context, message *model.Message) (*model.Message, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.Message, error)

	// ListPage returns messages in reverse chronological order, starting
	// strictly after the cursor. It fetches one extra document to report
	// hasMore without a count round-trip.
	ListPage(ctx context.Context, conversationID primitive.ObjectID, before *primitive.ObjectID, limit int) ([]model.Message, bool, error)

	// MarkRead adds userID to the read set of every targeted message that
	// the user did not author and has not read, recomputing the delivery
	// status in the same atomic update. Returns how many messages changed.
	MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, upTo *primitive.ObjectID) (int64, error)

	AddReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*model.Message, error)
	RemoveReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*model.Message, error)

	// SetContent replaces the content and stamps the edit marker, but only
	// if the content actually differs; a same-content edit matches nothing
	// and returns false.
	SetContent(ctx context.Context, messageID primitive.ObjectID, content string, editedAt time.Time) (bool, error)

	SoftDelete(ctx context.Context, messageID primitive.ObjectID, actorID string, deletedAt time.Time) error
	CountUnread(ctx context.Context, conversationID primitive.ObjectID, userID string) (int64, error)
}

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *messageRepository) Insert(ctx context.Context, message *model.Message) (*model.Message, error) {
	if message == nil {
		return nil, ErrInvalidMessage
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			r.logger.Warn("retrying message insert",
				zap.String("conversation_id", message.ConversationID.Hex()),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := r.mongoRepo.Create(ctx, *message)
		if err == nil {
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				message.ID = oid
			}
			r.logger.Info("message inserted",
				zap.String("message_id", message.ID.Hex()),
				zap.String("conversation_id", message.ConversationID.Hex()),
			)
			return message, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	r.logger.Error("failed to insert message after all retries",
		zap.String("conversation_id", message.ConversationID.Hex()),
		zap.Error(lastErr),
	)
	return nil, apperr.Internal(lastErr, "insert message")
}

func (r *messageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	message, err := r.mongoRepo.FindByID(ctx, id)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("message %s not found", id.Hex())
		}
		r.logger.Error("failed to fetch message", zap.String("message_id", id.Hex()), zap.Error(err))
		return nil, apperr.Internal(err, "fetch message")
	}
	return message, nil
}

func (r *messageRepository) ListPage(ctx context.Context, conversationID primitive.ObjectID, before *primitive.ObjectID, limit int) ([]model.Message, bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	builder := db.NewFilter().Eq("conversation_id", conversationID)
	if before != nil {
		builder.Lt("_id", *before)
	}
	filter := builder.Build()

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))

	messages, err := r.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to list messages",
			zap.String("conversation_id", conversationID.Hex()),
			zap.Error(err),
		)
		return nil, false, apperr.Internal(err, "list messages")
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	r.logger.Debug("messages listed",
		zap.String("conversation_id", conversationID.Hex()),
		zap.Int("count", len(messages)),
		zap.Bool("has_more", hasMore),
	)
	return messages, hasMore, nil
}

// MarkRead runs one UpdateMany with an aggregation-pipeline update: stage
// one grows the read set with $setUnion, stage two derives the status from
// the post-union set size. Both land in the same document write, so
// concurrent readers can never leave a receipt without its status change.
//
// The status rule is deliberate policy: read at two or more receipts,
// delivered at one, regardless of conversation size.
func (r *messageRepository) MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, upTo *primitive.ObjectID) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	builder := db.NewFilter().
		Eq("conversation_id", conversationID).
		Ne("sender", userID).
		Ne("is_read_by", userID)
	if upTo != nil {
		builder.Lte("_id", *upTo)
	}
	filter := builder.Build()

	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"is_read_by": bson.M{"$setUnion": bson.A{
				bson.M{"$ifNull": bson.A{"$is_read_by", bson.A{}}},
				bson.A{userID},
			}},
		}},
		bson.M{"$set": bson.M{
			"status": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{bson.M{"$size": "$is_read_by"}, 2}},
				model.StatusRead,
				model.StatusDelivered,
			}},
		}},
	}

	result, err := r.mongoRepo.UpdateManyRaw(ctx, filter, pipeline)
	if err != nil {
		r.logger.Error("failed to mark messages read",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, apperr.Internal(err, "mark messages read")
	}

	r.logger.Debug("messages marked read",
		zap.String("conversation_id", conversationID.Hex()),
		zap.String("user_id", userID),
		zap.Int64("modified", result.ModifiedCount),
	)
	return result.ModifiedCount, nil
}

// AddReaction is a two-phase conditional update: add the user into an
// existing bucket, or create the bucket if no writer beat us to it. Both
// phases are single-document atomic, and the loop absorbs the race where a
// concurrent reactor creates the bucket between them. Each phase returns
// the post-update document, so a successful write needs no follow-up read.
func (r *messageRepository) AddReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	for attempt := 0; attempt < maxRetries; attempt++ {
		message, err := r.mongoRepo.FindOneAndUpdate(ctx,
			bson.M{"_id": messageID, "reactions.emoji": emoji},
			bson.M{"$addToSet": bson.M{"reactions.$.users": userID}},
		)
		if err == nil {
			return message, nil
		}
		if err != mongo.ErrNoDocuments {
			return nil, apperr.Internal(err, "add reaction")
		}

		bucket := model.Reaction{Emoji: emoji, Users: []string{userID}, CreatedAt: time.Now().UTC()}
		message, err = r.mongoRepo.FindOneAndUpdate(ctx,
			bson.M{"_id": messageID, "reactions.emoji": bson.M{"$ne": emoji}},
			bson.M{"$push": bson.M{"reactions": bucket}},
		)
		if err == nil {
			return message, nil
		}
		if err != mongo.ErrNoDocuments {
			return nil, apperr.Internal(err, "add reaction bucket")
		}

		// Neither phase matched: either the message is gone or another
		// writer created the bucket after phase one looked. Re-check and
		// loop.
		if _, err := r.FindByID(ctx, messageID); err != nil {
			return nil, err
		}
	}

	return nil, apperr.Internal(ErrOperationTimeout, "add reaction: conditional update never settled")
}

// RemoveReaction pulls the user from the bucket, then prunes any bucket
// whose user set emptied, leaving no dangling empty buckets behind.
func (r *messageRepository) RemoveReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*model.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err := r.mongoRepo.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "reactions.emoji": emoji},
		bson.M{"$pull": bson.M{"reactions.$.users": userID}},
	)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			// No such bucket; nothing to remove.
			return r.FindByID(ctx, messageID)
		}
		return nil, apperr.Internal(err, "remove reaction")
	}

	message, err := r.mongoRepo.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID},
		bson.M{"$pull": bson.M{"reactions": bson.M{"users": bson.M{"$size": 0}}}},
	)
	if err != nil {
		return nil, apperr.Internal(err, "prune empty reaction bucket")
	}
	return message, nil
}

func (r *messageRepository) SetContent(ctx context.Context, messageID primitive.ObjectID, content string, editedAt time.Time) (bool, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":     messageID,
		"content": bson.M{"$ne": content},
	}
	update := bson.M{"$set": bson.M{
		"content":          content,
		"edited.is_edited": true,
		"edited.edited_at": editedAt,
		"updated_at":       editedAt,
	}}

	result, err := r.mongoRepo.UpdateRaw(ctx, filter, update)
	if err != nil {
		r.logger.Error("failed to edit message", zap.String("message_id", messageID.Hex()), zap.Error(err))
		return false, apperr.Internal(err, "edit message")
	}
	return result.ModifiedCount > 0, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID primitive.ObjectID, actorID string, deletedAt time.Time) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"deleted.is_deleted": true,
		"deleted.deleted_at": deletedAt,
		"deleted.deleted_by": actorID,
		"updated_at":         deletedAt,
	}}

	result, err := r.mongoRepo.UpdateRaw(ctx, bson.M{"_id": messageID}, update)
	if err != nil {
		r.logger.Error("failed to soft delete message", zap.String("message_id", messageID.Hex()), zap.Error(err))
		return apperr.Internal(err, "soft delete message")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("message %s not found", messageID.Hex())
	}

	r.logger.Info("message soft deleted",
		zap.String("message_id", messageID.Hex()),
		zap.String("deleted_by", actorID),
	)
	return nil
}

// CountUnread is computed on demand and never cached: messages not sent by
// the user, not read by the user, and not soft-deleted.
func (r *messageRepository) CountUnread(ctx context.Context, conversationID primitive.ObjectID, userID string) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_id", conversationID).
		Ne("sender", userID).
		Ne("is_read_by", userID).
		Eq("deleted.is_deleted", false).
		Build()

	count, err := r.mongoRepo.Count(ctx, filter)
	if err != nil {
		r.logger.Error("failed to count unread messages",
			zap.String("conversation_id", conversationID.Hex()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, apperr.Internal(err, "count unread messages")
	}
	return count, nil
}
