package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"msgstore/models"
	"msgstore/planner"
	"msgstore/shard"
)

// ShardStats counts the operations one partition has served.
type ShardStats struct {
	Reads   uint64
	Writes  uint64
	Records int
}

// partition holds the records one shard owns.
type partition struct {
	mu      sync.RWMutex
	records map[string]*models.MessageRecord // by _id
	msgIDs  map[string]string                // msgId -> _id
	reads   uint64
	writes  uint64
}

func newPartition() *partition {
	return &partition{
		records: make(map[string]*models.MessageRecord),
		msgIDs:  make(map[string]string),
	}
}

// MemoryRepository keeps records in per-shard partitions placed by the same
// router the planner uses. A targeted plan reads exactly one partition.
//
// Grow the ring through AddShard, never through the router directly, so the
// records the new shard wins move with it.
type MemoryRepository struct {
	router *shard.Router

	// mu is held shared by every operation and exclusively while records move
	mu         sync.RWMutex
	partitions map[string]*partition
}

func NewMemoryRepository(router *shard.Router) *MemoryRepository {
	r := &MemoryRepository{router: router, partitions: make(map[string]*partition)}
	for _, name := range router.Shards() {
		r.partitions[name] = newPartition()
	}
	return r
}

// partitionFor is called with r.mu held.
func (r *MemoryRepository) partitionFor(chatID string) (*partition, error) {
	name := r.router.RouteFor(chatID)
	p, ok := r.partitions[name]
	if !ok {
		return nil, fmt.Errorf("shard %s has no partition", name)
	}
	return p, nil
}

// AddShard grows the ring and moves every record the new shard wins into its
// partition. Only those records move. It returns how many moved.
func (r *MemoryRepository) AddShard(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.router.AddShard(name)
	for _, s := range r.router.Shards() {
		if _, ok := r.partitions[s]; !ok {
			r.partitions[s] = newPartition()
		}
	}

	// r.mu is exclusive, so no other goroutine touches a partition here
	moved := 0
	for from, p := range r.partitions {
		for id, rec := range p.records {
			to := r.router.RouteFor(rec.ChatID)
			if to == from {
				continue
			}
			dst := r.partitions[to]
			dst.records[id] = rec
			dst.msgIDs[rec.MsgID] = id
			delete(p.records, id)
			if p.msgIDs[rec.MsgID] == id {
				delete(p.msgIDs, rec.MsgID)
			}
			moved++
		}
	}
	return moved
}

func (r *MemoryRepository) Insert(_ context.Context, rec *models.MessageRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, err := r.partitionFor(rec.ChatID)
	if err != nil {
		return err
	}
	atomic.AddUint64(&p.writes, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.records[rec.ID]; ok {
		return fmt.Errorf("%w: %s", models.ErrDuplicateMessage, rec.ID)
	}
	// msgId is only unique where the unique index can exist
	if !r.router.IsSharded() {
		if _, ok := p.msgIDs[rec.MsgID]; ok {
			return fmt.Errorf("%w: msgId %s", models.ErrDuplicateMessage, rec.MsgID)
		}
	}
	stored := *rec
	p.records[rec.ID] = &stored
	p.msgIDs[rec.MsgID] = rec.ID
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, plan planner.Plan) ([]models.MessageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []*partition
	if plan.Shard != "" {
		if p, ok := r.partitions[plan.Shard]; ok {
			targets = []*partition{p}
		}
	} else {
		for _, p := range r.partitions {
			targets = append(targets, p)
		}
	}

	var out []models.MessageRecord
	for _, p := range targets {
		atomic.AddUint64(&p.reads, 1)
		p.mu.RLock()
		for _, rec := range p.records {
			if !plan.Criteria.Matches(rec) {
				continue
			}
			if plan.After != nil && !plan.After.Admits(rec.MsgCreateTime, rec.MsgID) {
				continue
			}
			out = append(out, *rec)
		}
		p.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MsgCreateTime != out[j].MsgCreateTime {
			return out[i].MsgCreateTime > out[j].MsgCreateTime
		}
		return out[i].MsgID > out[j].MsgID
	})
	if len(out) > plan.Limit+1 {
		out = out[:plan.Limit+1]
	}
	return out, nil
}

func (r *MemoryRepository) AdvanceStatus(_ context.Context, chatID, msgID string, next models.MsgStatus, at time.Time) (*models.MessageRecord, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: %s: %s", models.ErrInvalidFieldValue, models.FieldMsgStatus, next)
	}
	return r.update(chatID, msgID, func(rec *models.MessageRecord) error {
		if next < rec.MsgStatus {
			return fmt.Errorf("%w: %s -> %s", models.ErrStatusRegression, rec.MsgStatus, next)
		}
		rec.MsgStatus = next
		rec.UpdateTime = at
		return nil
	})
}

func (r *MemoryRepository) Withdraw(_ context.Context, chatID, msgID string, at time.Time) (*models.MessageRecord, error) {
	return r.update(chatID, msgID, func(rec *models.MessageRecord) error {
		rec.WithdrawFlag = models.WithdrawWithdrawn
		rec.UpdateTime = at
		return nil
	})
}

func (r *MemoryRepository) update(chatID, msgID string, fn func(*models.MessageRecord) error) (*models.MessageRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, err := r.partitionFor(chatID)
	if err != nil {
		return nil, err
	}
	atomic.AddUint64(&p.writes, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	id := models.DocumentID(chatID, msgID)
	rec, ok := p.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrMessageNotFound, id)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	out := *rec
	return &out, nil
}

// Stats reports per-shard operation counts.
func (r *MemoryRepository) Stats() map[string]ShardStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ShardStats, len(r.partitions))
	for name, p := range r.partitions {
		p.mu.RLock()
		n := len(p.records)
		p.mu.RUnlock()
		out[name] = ShardStats{
			Reads:   atomic.LoadUint64(&p.reads),
			Writes:  atomic.LoadUint64(&p.writes),
			Records: n,
		}
	}
	return out
}
