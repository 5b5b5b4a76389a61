package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"msgstore/database"
	"msgstore/models"
	"msgstore/planner"
)

const codeBadValue = 2

// MongoRepository runs plans against im_c2c_msg_record.
type MongoRepository struct {
	store    *database.Store
	coll     *mongo.Collection
	useHints bool
	log      *zap.Logger
}

// NewMongoRepository builds the repository. With useHints the chosen index is
// passed to the server as a hint; a server that rejects the hint gets the
// query again without it.
func NewMongoRepository(store *database.Store, useHints bool, log *zap.Logger) *MongoRepository {
	return &MongoRepository{store: store, coll: store.Messages, useHints: useHints, log: log}
}

func (r *MongoRepository) Insert(ctx context.Context, rec *models.MessageRecord) error {
	err := r.store.Do(ctx, "insert", func(ctx context.Context) error {
		_, err := r.coll.InsertOne(ctx, rec)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", models.ErrDuplicateMessage, rec.ID)
	}
	return err
}

func (r *MongoRepository) Find(ctx context.Context, plan planner.Plan) ([]models.MessageRecord, error) {
	filter := Filter(plan)
	opts := options.Find().
		SetSort(SortOrder()).
		SetLimit(int64(plan.Limit + 1))
	if r.useHints {
		opts.SetHint(plan.Index.Name)
	}

	out, err := r.find(ctx, filter, opts)
	if r.useHints && isHintError(err) {
		r.log.Warn("index hint rejected, retrying without hint",
			zap.String("index", plan.Index.Name),
			zap.Error(err))
		opts.Hint = nil
		out, err = r.find(ctx, filter, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("find on %s: %w", plan.Index.Name, err)
	}
	return out, nil
}

func (r *MongoRepository) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]models.MessageRecord, error) {
	var out []models.MessageRecord
	err := r.store.Do(ctx, "find", func(ctx context.Context) error {
		cursor, err := r.coll.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		out = out[:0]
		return cursor.All(ctx, &out)
	})
	return out, err
}

func (r *MongoRepository) AdvanceStatus(ctx context.Context, chatID, msgID string, next models.MsgStatus, at time.Time) (*models.MessageRecord, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: %s: %s", models.ErrInvalidFieldValue, models.FieldMsgStatus, next)
	}
	filter := bson.D{
		{Key: models.FieldID, Value: models.DocumentID(chatID, msgID)},
		{Key: models.FieldChatID, Value: chatID},
		{Key: models.FieldMsgStatus, Value: bson.D{{Key: "$lte", Value: next}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: models.FieldMsgStatus, Value: next},
		{Key: models.FieldUpdateTime, Value: at},
	}}}

	rec, err := r.findOneAndUpdate(ctx, "advanceStatus", filter, update)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return rec, err
	}

	current, err := r.get(ctx, chatID, msgID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s -> %s", models.ErrStatusRegression, current.MsgStatus, next)
}

func (r *MongoRepository) Withdraw(ctx context.Context, chatID, msgID string, at time.Time) (*models.MessageRecord, error) {
	filter := bson.D{
		{Key: models.FieldID, Value: models.DocumentID(chatID, msgID)},
		{Key: models.FieldChatID, Value: chatID},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: models.FieldWithdrawFlag, Value: models.WithdrawWithdrawn},
		{Key: models.FieldUpdateTime, Value: at},
	}}}

	rec, err := r.findOneAndUpdate(ctx, "withdraw", filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrMessageNotFound, models.DocumentID(chatID, msgID))
	}
	return rec, err
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, op string, filter, update bson.D) (*models.MessageRecord, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec models.MessageRecord
	err := r.store.Do(ctx, op, func(ctx context.Context) error {
		return r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepository) get(ctx context.Context, chatID, msgID string) (*models.MessageRecord, error) {
	filter := bson.D{
		{Key: models.FieldID, Value: models.DocumentID(chatID, msgID)},
		{Key: models.FieldChatID, Value: chatID},
	}
	var rec models.MessageRecord
	err := r.store.Do(ctx, "get", func(ctx context.Context) error {
		return r.coll.FindOne(ctx, filter).Decode(&rec)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrMessageNotFound, models.DocumentID(chatID, msgID))
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Filter renders the plan's criteria and cursor position as a query document.
// chatId comes first whenever it is known so mongos can target one shard.
func Filter(plan planner.Plan) bson.D {
	c := plan.Criteria
	filter := bson.D{}
	if c.ChatID != "" {
		filter = append(filter, bson.E{Key: models.FieldChatID, Value: c.ChatID})
	}
	if c.MsgID != "" {
		filter = append(filter, bson.E{Key: models.FieldMsgID, Value: c.MsgID})
	}
	if c.FromUserID != "" {
		filter = append(filter, bson.E{Key: models.FieldFromUserID, Value: c.FromUserID})
	}
	if c.ToUserID != "" {
		filter = append(filter, bson.E{Key: models.FieldToUserID, Value: c.ToUserID})
	}
	if c.Status != nil {
		filter = append(filter, bson.E{Key: models.FieldMsgStatus, Value: *c.Status})
	}
	if c.Format != nil {
		filter = append(filter, bson.E{Key: models.FieldMsgFormat, Value: *c.Format})
	}
	if c.Withdraw != nil {
		filter = append(filter, bson.E{Key: models.FieldWithdrawFlag, Value: *c.Withdraw})
	}

	timeRange := bson.D{}
	if c.StartTime > 0 {
		timeRange = append(timeRange, bson.E{Key: "$gte", Value: c.StartTime})
	}
	if c.EndTime > 0 {
		timeRange = append(timeRange, bson.E{Key: "$lte", Value: c.EndTime})
	}
	if len(timeRange) > 0 {
		filter = append(filter, bson.E{Key: models.FieldMsgCreateTime, Value: timeRange})
	}

	if c.Content != "" {
		filter = append(filter, bson.E{Key: models.FieldMsgContent, Value: primitive.Regex{
			Pattern: regexp.QuoteMeta(c.Content),
			Options: "i",
		}})
	}

	if a := plan.After; a != nil {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: models.FieldMsgCreateTime, Value: bson.D{{Key: "$lt", Value: a.CreateTime}}}},
			bson.D{
				{Key: models.FieldMsgCreateTime, Value: a.CreateTime},
				{Key: models.FieldMsgID, Value: bson.D{{Key: "$lt", Value: a.MsgID}}},
			},
		}})
	}
	return filter
}

// SortOrder is newest first with msgId breaking ties.
func SortOrder() bson.D {
	return bson.D{
		{Key: models.FieldMsgCreateTime, Value: -1},
		{Key: models.FieldMsgID, Value: -1},
	}
}

func isHintError(err error) bool {
	if err == nil {
		return false
	}
	return database.HasCode(err, codeBadValue) && strings.Contains(strings.ToLower(err.Error()), "hint")
}
