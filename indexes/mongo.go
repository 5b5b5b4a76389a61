package indexes

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"msgstore/database"
	"msgstore/shard"
)

// MongoCatalog is the Catalog of a live MongoDB collection.
type MongoCatalog struct {
	store *database.Store
	coll  *mongo.Collection
}

func NewMongoCatalog(store *database.Store) *MongoCatalog {
	return &MongoCatalog{store: store, coll: store.Messages}
}

func (c *MongoCatalog) Create(ctx context.Context, d Declaration) error {
	opts := options.Index().SetName(d.Name).SetBackground(d.Background)
	if d.Unique {
		opts.SetUnique(true)
	}
	model := mongo.IndexModel{Keys: KeysDocument(d.Keys), Options: opts}

	err := c.store.Do(ctx, "createIndex", func(ctx context.Context) error {
		_, err := c.coll.Indexes().CreateOne(ctx, model)
		return err
	})
	if database.HasCode(err,
		database.CodeIndexAlreadyExists,
		database.CodeIndexOptionsConflict,
		database.CodeIndexBuildAlreadyInProgress) {
		return ErrIndexExists
	}
	return err
}

type liveIndex struct {
	Name       string `bson:"name"`
	Key        bson.D `bson:"key"`
	Unique     bool   `bson:"unique"`
	Background bool   `bson:"background"`
}

func (c *MongoCatalog) List(ctx context.Context) ([]Declaration, error) {
	var raw []liveIndex
	err := c.store.Do(ctx, "listIndexes", func(ctx context.Context) error {
		cursor, err := c.coll.Indexes().List(ctx)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &raw)
	})
	if database.HasCode(err, database.CodeNamespaceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Declaration, 0, len(raw))
	for _, idx := range raw {
		keys, err := KeysFromDocument(idx.Key)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", idx.Name, err)
		}
		out = append(out, Declaration{
			Name:       idx.Name,
			Keys:       keys,
			Unique:     idx.Unique,
			Background: idx.Background,
		})
	}
	return out, nil
}

// KeysDocument renders keys as the ordered key document MongoDB expects.
func KeysDocument(keys []Key) bson.D {
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		if k.Order == Hashed {
			doc = append(doc, bson.E{Key: k.Field, Value: shard.KeyHashed})
			continue
		}
		doc = append(doc, bson.E{Key: k.Field, Value: int32(k.Order)})
	}
	return doc
}

// KeysFromDocument parses a key document as returned by listIndexes or
// config.collections.
func KeysFromDocument(doc bson.D) ([]Key, error) {
	keys := make([]Key, 0, len(doc))
	for _, e := range doc {
		var order Order
		switch v := e.Value.(type) {
		case int32:
			order = signOf(float64(v))
		case int64:
			order = signOf(float64(v))
		case float64:
			order = signOf(v)
		case string:
			order = Special
			if v == shard.KeyHashed {
				order = Hashed
			}
		default:
			return nil, fmt.Errorf("unsupported key value %v on %s", e.Value, e.Key)
		}
		keys = append(keys, Key{Field: e.Key, Order: order})
	}
	return keys, nil
}

func signOf(v float64) Order {
	if v < 0 {
		return Descending
	}
	return Ascending
}
