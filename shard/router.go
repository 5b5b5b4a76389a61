// Package shard maps a conversation to the shard that stores it.
//
// The message collection is hash-sharded on chatId, so every document of a
// conversation lives on exactly one shard. The router reproduces that
// placement with rendezvous hashing over a fixed set of shard names: each
// chatId goes to the shard with the highest xxhash weight for the pair
// (shard, chatId). Adding a shard only moves the conversations the new shard
// wins; no other key is remapped.
package shard

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"msgstore/models"
)

// Primary is the single logical shard used when the deployment is not
// partitioned.
const Primary = "primary"

// KeyHashed is the index value MongoDB uses for a hashed key.
const KeyHashed = "hashed"

// Router is safe for concurrent use.
type Router struct {
	mu      sync.RWMutex
	sharded bool
	shards  []string
	ring    *rendezvous.Rendezvous
}

// NewRouter builds a router over the given shard names. With sharded false, or
// with no names, every chatId routes to Primary.
func NewRouter(shards []string, sharded bool) *Router {
	names := dedupe(shards)
	if !sharded || len(names) == 0 {
		names = []string{Primary}
	}
	return &Router{
		sharded: sharded,
		shards:  names,
		ring:    rendezvous.New(names, xxhash.Sum64String),
	}
}

// Single returns a router for an unsharded deployment.
func Single() *Router {
	return NewRouter(nil, false)
}

// RouteFor returns the shard that owns chatID. The result depends only on the
// chatID and the shard names, never on collection contents.
func (r *Router) RouteFor(chatID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.sharded {
		return Primary
	}
	return r.ring.Lookup(chatID)
}

// IsSharded reports whether the deployment partitions the collection.
func (r *Router) IsSharded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sharded
}

// Shards returns a sorted copy of the shard names.
func (r *Router) Shards() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.shards))
	copy(out, r.shards)
	return out
}

// AddShard grows the ring. It is a no-op for unsharded routers and for names
// already present.
func (r *Router) AddShard(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sharded || name == "" {
		return
	}
	for _, s := range r.shards {
		if s == name {
			return
		}
	}
	r.shards = append(r.shards, name)
	sort.Strings(r.shards)
	r.ring.Add(name)
}

// ShardKey is the hashed shard-key pattern of the message collection.
func (r *Router) ShardKey() (field string, kind string) {
	return models.FieldChatID, KeyHashed
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
