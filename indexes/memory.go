package indexes

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"msgstore/models"
)

// MemoryCatalog is an in-process Catalog backing the in-memory repository.
type MemoryCatalog struct {
	mu      sync.RWMutex
	indexes map[string]Declaration
}

// NewMemoryCatalog starts with the implicit _id_ index every collection has.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		indexes: map[string]Declaration{
			"_id_": {Name: "_id_", Keys: []Key{{Field: models.FieldID, Order: Ascending}}},
		},
	}
}

func (c *MemoryCatalog) Create(_ context.Context, d Declaration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indexes[d.Name]; ok {
		return ErrIndexExists
	}
	for _, other := range c.indexes {
		if SameKeys(other.Keys, d.Keys) {
			return fmt.Errorf("%w: same keys as %s", ErrIndexExists, other.Name)
		}
	}
	keys := make([]Key, len(d.Keys))
	copy(keys, d.Keys)
	d.Keys = keys
	c.indexes[d.Name] = d
	return nil
}

func (c *MemoryCatalog) List(_ context.Context) ([]Declaration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Declaration, 0, len(c.indexes))
	for _, d := range c.indexes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Drop removes an index; it reports whether one was removed.
func (c *MemoryCatalog) Drop(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indexes[name]; !ok {
		return false
	}
	delete(c.indexes, name)
	return true
}
