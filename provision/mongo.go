package provision

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"msgstore/database"
	"msgstore/indexes"
	"msgstore/models"
	"msgstore/shard"
)

// MongoClusterAdmin issues administration commands through the admin
// database of the store's client.
type MongoClusterAdmin struct {
	store *database.Store
}

func NewMongoClusterAdmin(store *database.Store) *MongoClusterAdmin {
	return &MongoClusterAdmin{store: store}
}

func (a *MongoClusterAdmin) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// IsSharded asks the server what it is. A mongos answers hello with
// msg "isdbgrid"; no privileges are needed.
func (a *MongoClusterAdmin) IsSharded(ctx context.Context) (bool, error) {
	var reply struct {
		Msg string `bson:"msg"`
	}
	err := a.store.Command(ctx, a.store.Admin(), "hello", bson.D{{Key: "hello", Value: 1}}, &reply)
	if database.HasCode(err, database.CodeCommandNotFound) {
		// servers older than 4.4.2
		err = a.store.Command(ctx, a.store.Admin(), "isMaster", bson.D{{Key: "isMaster", Value: 1}}, &reply)
	}
	if err != nil {
		return false, err
	}
	return reply.Msg == "isdbgrid", nil
}

func (a *MongoClusterAdmin) EnableSharding(ctx context.Context, db string) error {
	cmd := bson.D{{Key: "enableSharding", Value: db}}
	return classify(a.store.Command(ctx, a.store.Admin(), "enableSharding", cmd, nil))
}

func (a *MongoClusterAdmin) ShardCollection(ctx context.Context, namespace, field string) error {
	cmd := bson.D{
		{Key: "shardCollection", Value: namespace},
		{Key: "key", Value: bson.D{{Key: field, Value: shard.KeyHashed}}},
	}
	return classify(a.store.Command(ctx, a.store.Admin(), "shardCollection", cmd, nil))
}

// ShardKeyOf reads the collection's entry in config.collections.
func (a *MongoClusterAdmin) ShardKeyOf(ctx context.Context, namespace string) ([]indexes.Key, error) {
	var entry struct {
		Key     bson.D `bson:"key"`
		Dropped bool   `bson:"dropped"`
	}
	coll := a.store.Client.Database("config").Collection("collections")
	err := a.store.Do(ctx, "shardKey", func(ctx context.Context) error {
		return coll.FindOne(ctx, bson.D{{Key: "_id", Value: namespace}}).Decode(&entry)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	if entry.Dropped {
		return nil, nil
	}
	return indexes.KeysFromDocument(entry.Key)
}

// classify maps server codes onto the workflow's sentinels. AlreadyInitialized
// only says the target was partitioned before; the key is checked separately.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case database.HasCode(err, database.CodeUnauthorized):
		return fmt.Errorf("%w: %v", models.ErrInsufficientPrivilege, err)
	case database.HasCode(err, database.CodeAlreadyInitialized):
		return fmt.Errorf("%w: %v", ErrAlreadySharded, err)
	}
	return err
}
