package provision

import (
	"context"
	"fmt"

	"msgstore/indexes"
)

// StaticAdmin is the ClusterAdmin of a backend whose partitioning is fixed
// at startup, such as the in-memory store. Sharding commands report the
// collection as already sharded when Sharded is set.
type StaticAdmin struct {
	Sharded bool
}

func (StaticAdmin) Ping(context.Context) error { return nil }

func (a StaticAdmin) IsSharded(context.Context) (bool, error) { return a.Sharded, nil }

func (a StaticAdmin) EnableSharding(_ context.Context, db string) error {
	return a.fixed(db)
}

func (a StaticAdmin) ShardCollection(_ context.Context, namespace, _ string) error {
	return a.fixed(namespace)
}

func (a StaticAdmin) ShardKeyOf(context.Context, string) ([]indexes.Key, error) {
	if !a.Sharded {
		return nil, nil
	}
	return RequiredShardKey(), nil
}

func (a StaticAdmin) fixed(target string) error {
	if !a.Sharded {
		return fmt.Errorf("%s: backend is not partitioned", target)
	}
	return fmt.Errorf("%w: %s", ErrAlreadySharded, target)
}
