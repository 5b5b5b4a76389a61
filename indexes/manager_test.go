package indexes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"msgstore/models"
)

// flakyCatalog fails Create for selected names and can slow Create down to
// widen race windows.
type flakyCatalog struct {
	*MemoryCatalog
	failOn  map[string]error
	delay   time.Duration
	creates int32
}

func (f *flakyCatalog) Create(ctx context.Context, d Declaration) error {
	atomic.AddInt32(&f.creates, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.failOn[d.Name]; ok {
		return err
	}
	return f.MemoryCatalog.Create(ctx, d)
}

func TestRequiredDeclarations(t *testing.T) {
	decls := Required(false)
	require.Len(t, decls, 10)
	require.NoError(t, Validate(decls))

	want := []string{
		ChatIDHashed, MsgID, ChatIDCreateTime, FromUserChatCreateTime, ToUserChatCreateTime,
		ChatIDContent, ChatIDStatusCreateTime, ChatIDFormatCreateTime, ChatIDWithdrawCreateTime, ChatIDCombined,
	}
	for i, d := range decls {
		assert.Equal(t, want[i], d.Name)
		assert.True(t, d.Background, "%s must build in background", d.Name)
	}

	assert.Equal(t, "{chatId: hashed}", decls[0].KeySpec())
	assert.Equal(t, "{chatId: 1, msgStatus: 1, msgFormat: 1, withdrawFlag: 1, msgCreateTime: -1}", decls[9].KeySpec())

	assert.True(t, decls[1].Unique)
	assert.False(t, Required(true)[1].Unique, "msgId cannot be unique on a hash-sharded cluster")
}

func TestValidateRejectsIndexWithoutChatID(t *testing.T) {
	decls := append(Required(false), Declaration{
		Name: "idx_fromUserId_msgCreateTime",
		Keys: []Key{{Field: models.FieldFromUserID, Order: Ascending}, {Field: models.FieldMsgCreateTime, Order: Descending}},
	})
	err := Validate(decls)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idx_fromUserId_msgCreateTime")

	dup := append(Required(false), Required(false)[2])
	assert.Error(t, Validate(dup))
}

func TestDiff(t *testing.T) {
	required := Required(false)
	live := required[:7]
	assert.Equal(t, []string{ChatIDFormatCreateTime, ChatIDWithdrawCreateTime, ChatIDCombined}, Diff(required, live))
	assert.Empty(t, Diff(required, required))
}

func TestEnsureAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryCatalog(), nil)

	first := m.EnsureAll(ctx, Required(false))
	for _, r := range first {
		assert.Equal(t, Created, r.Outcome, r.Index.Name)
		assert.NoError(t, r.Err)
	}

	second := m.EnsureAll(ctx, Required(false))
	for _, r := range second {
		assert.Equal(t, AlreadyExists, r.Outcome, r.Index.Name)
		assert.True(t, r.OK())
	}

	live, err := m.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 11) // ten declared plus _id_
	assert.Empty(t, Diff(Required(false), live))
}

func TestEnsureAdoptsIndexUnderAnotherName(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	// what shardCollection leaves behind on an unindexed collection
	require.NoError(t, cat.Create(ctx, Declaration{
		Name: "chatId_hashed",
		Keys: []Key{{Field: models.FieldChatID, Order: Hashed}},
	}))
	m := NewManager(cat, nil)

	for run := 1; run <= 2; run++ {
		results := m.EnsureAll(ctx, Required(true))
		require.Equal(t, ChatIDHashed, results[0].Index.Name)
		assert.Equal(t, AlreadyExists, results[0].Outcome, "run %d", run)
		assert.Equal(t, "present as chatId_hashed", results[0].Reason)
		for _, r := range results {
			assert.True(t, r.OK(), "run %d: %s", run, r.Index.Name)
		}
	}

	live, err := m.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, Diff(Required(true), live))
}

func TestEnsureTreatsOptionsConflictAsExisting(t *testing.T) {
	conflict := mongo.CommandError{
		Code:    85,
		Name:    "IndexOptionsConflict",
		Message: "Index already exists with a different name: chatId_hashed",
	}
	cat := &flakyCatalog{
		MemoryCatalog: NewMemoryCatalog(),
		failOn:        map[string]error{ChatIDHashed: conflict},
	}
	m := NewManager(cat, nil)

	for run := 1; run <= 2; run++ {
		res := m.EnsureIndex(context.Background(), Required(true)[0])
		assert.Equal(t, AlreadyExists, res.Outcome, "run %d", run)
		assert.NoError(t, res.Err)
	}
}

func TestDiffMatchesKeyPattern(t *testing.T) {
	required := Required(false)
	live := append([]Declaration{}, required[1:]...)
	live = append(live, Declaration{Name: "chatId_hashed", Keys: required[0].Keys})
	assert.Empty(t, Diff(required, live))

	live[len(live)-1].Keys = []Key{{Field: models.FieldChatID, Order: Ascending}}
	assert.Equal(t, []string{ChatIDHashed}, Diff(required, live))
}

func TestEnsureAllIsolatesFailures(t *testing.T) {
	cat := &flakyCatalog{
		MemoryCatalog: NewMemoryCatalog(),
		failOn:        map[string]error{ChatIDContent: errors.New("key too large")},
	}
	m := NewManager(cat, nil)

	results := m.EnsureAll(context.Background(), Required(false))
	require.Len(t, results, 10)

	for _, r := range results {
		if r.Index.Name == ChatIDContent {
			assert.Equal(t, Failed, r.Outcome)
			assert.ErrorIs(t, r.Err, models.ErrIndexCreationFailed)
			assert.Contains(t, r.Reason, "key too large")
			continue
		}
		assert.Equal(t, Created, r.Outcome, r.Index.Name)
	}

	live, _ := m.ListIndexes(context.Background())
	assert.Equal(t, []string{ChatIDContent}, Diff(Required(false), live))
}

func TestEnsureIndexConflictingKeys(t *testing.T) {
	cat := NewMemoryCatalog()
	require.NoError(t, cat.Create(context.Background(), Declaration{
		Name: ChatIDCreateTime,
		Keys: []Key{{Field: models.FieldChatID, Order: Ascending}, {Field: models.FieldMsgCreateTime, Order: Ascending}},
	}))

	d, ok := Lookup(ChatIDCreateTime)
	require.True(t, ok)
	res := NewManager(cat, nil).EnsureIndex(context.Background(), d)

	assert.Equal(t, Failed, res.Outcome)
	assert.Contains(t, res.Reason, "msgCreateTime: 1")
}

// TestEnsureIndexConcurrentDuplicates runs two managers (two operators) and
// two goroutines per manager against one catalog; every call must succeed.
func TestEnsureIndexConcurrentDuplicates(t *testing.T) {
	cat := &flakyCatalog{MemoryCatalog: NewMemoryCatalog(), delay: 20 * time.Millisecond}
	operators := []*Manager{NewManager(cat, nil), NewManager(cat, nil)}
	d, _ := Lookup(ChatIDStatusCreateTime)

	var wg sync.WaitGroup
	results := make(chan Result, 4)
	for _, m := range operators {
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(m *Manager) {
				defer wg.Done()
				results <- m.EnsureIndex(context.Background(), d)
			}(m)
		}
	}
	wg.Wait()
	close(results)

	created := 0
	for r := range results {
		require.True(t, r.OK(), "unexpected failure: %v", r.Err)
		if r.Outcome == Created {
			created++
		}
	}
	assert.GreaterOrEqual(t, created, 1)
	assert.LessOrEqual(t, atomic.LoadInt32(&cat.creates), int32(2), "singleflight collapses in-process duplicates")
}

func TestEnsureIndexServerReportsExisting(t *testing.T) {
	cat := &flakyCatalog{
		MemoryCatalog: NewMemoryCatalog(),
		failOn:        map[string]error{MsgID: ErrIndexExists},
	}
	d, _ := Lookup(MsgID)
	res := NewManager(cat, nil).EnsureIndex(context.Background(), d)
	assert.Equal(t, AlreadyExists, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestKeysDocument(t *testing.T) {
	hashed, _ := Lookup(ChatIDHashed)
	assert.Equal(t, bson.D{{Key: "chatId", Value: "hashed"}}, KeysDocument(hashed.Keys))

	combined, _ := Lookup(ChatIDCombined)
	doc := KeysDocument(combined.Keys)
	require.Len(t, doc, 5)
	assert.Equal(t, int32(-1), doc[4].Value)

	keys, err := KeysFromDocument(bson.D{
		{Key: "chatId", Value: int32(1)},
		{Key: "msgCreateTime", Value: float64(-1)},
		{Key: "msgContent", Value: "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Key{
		{Field: "chatId", Order: Ascending},
		{Field: "msgCreateTime", Order: Descending},
		{Field: "msgContent", Order: Special},
	}, keys)
}
