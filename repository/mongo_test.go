package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"msgstore/models"
	"msgstore/planner"
	"msgstore/shard"
)

func TestFilterLeadsWithChatID(t *testing.T) {
	p := planner.New(shard.Single(), planner.DefaultLimits)
	format := models.FormatImage
	plan, err := p.Plan(planner.Request{
		ChatID:     "C1",
		FromUserID: "alice",
		Format:     &format,
		Content:    "a.b*",
		StartTime:  100,
		EndTime:    900,
		Cursor:     planner.Cursor{CreateTime: 500, MsgID: "m5"}.Encode(),
	})
	require.NoError(t, err)

	f := Filter(plan)
	require.NotEmpty(t, f)
	assert.Equal(t, bson.E{Key: "chatId", Value: "C1"}, f[0])

	m := f.Map()
	assert.Equal(t, "alice", m["fromUserId"])
	assert.Equal(t, models.FormatImage, m["msgFormat"])
	assert.Equal(t, bson.D{{Key: "$gte", Value: int64(100)}, {Key: "$lte", Value: int64(900)}}, m["msgCreateTime"])
	assert.Equal(t, primitive.Regex{Pattern: `a\.b\*`, Options: "i"}, m["msgContent"])

	or, ok := m["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Equal(t, bson.D{{Key: "msgCreateTime", Value: bson.D{{Key: "$lt", Value: int64(500)}}}}, or[0])
}

func TestFilterPointLookup(t *testing.T) {
	p := planner.New(shard.Single(), planner.DefaultLimits)
	plan, err := p.Plan(planner.Request{MsgID: "m1"})
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "msgId", Value: "m1"}}, Filter(plan))
	assert.Equal(t, bson.D{{Key: "msgCreateTime", Value: -1}, {Key: "msgId", Value: -1}}, SortOrder())
}

func TestIsHintError(t *testing.T) {
	hint := mongo.CommandError{Code: codeBadValue, Message: "error processing query: planner returned error :: caused by :: hint provided does not correspond to an existing index"}
	assert.True(t, isHintError(hint))
	assert.False(t, isHintError(mongo.CommandError{Code: codeBadValue, Message: "bad sort"}))
	assert.False(t, isHintError(errors.New("hint")))
	assert.False(t, isHintError(nil))
}

func TestRedisRouteCacheDegradesWhenUnreachable(t *testing.T) {
	cache := NewRedisRouteCache("127.0.0.1:1", time.Minute, zap.NewNop())
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cache.Remember(ctx, "m1", "C1")
	chatID, ok := cache.Lookup(ctx, "m1")
	assert.False(t, ok)
	assert.Empty(t, chatID)
	assert.Equal(t, "msgroute:m1", routeKey("m1"))

	var nop NopRouteCache
	nop.Remember(ctx, "m1", "C1")
	_, ok = nop.Lookup(ctx, "m1")
	assert.False(t, ok)
}
