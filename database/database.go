package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Options locate the message collection.
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	Retry          RetryPolicy
}

// Store is the connection handle passed to every component that talks to
// MongoDB. There is no package-level client.
type Store struct {
	Client   *mongo.Client
	DB       *mongo.Database
	Messages *mongo.Collection

	retry RetryPolicy
	log   *zap.Logger
}

// Connect dials MongoDB and pings it, retrying transient failures with the
// configured backoff.
func Connect(ctx context.Context, opts Options, log *zap.Logger) (*Store, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	db := client.Database(opts.Database)
	s := &Store{
		Client:   client,
		DB:       db,
		Messages: db.Collection(opts.Collection),
		retry:    opts.Retry,
		log:      log,
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("connected to mongodb",
		zap.String("uri", RedactURI(opts.URI)),
		zap.String("database", opts.Database),
		zap.String("collection", opts.Collection))
	return s, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.Do(ctx, "ping", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.Client.Ping(pingCtx, readpref.Primary())
	})
}

// Disconnect closes the client. It is safe on a nil store.
func (s *Store) Disconnect(ctx context.Context) error {
	if s == nil || s.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.Client.Disconnect(ctx); err != nil {
		return err
	}
	s.log.Info("disconnected from mongodb")
	return nil
}

// Admin is the admin database, used for cluster administration commands.
func (s *Store) Admin() *mongo.Database {
	return s.Client.Database("admin")
}

// Namespace is "<database>.<collection>" of the message collection.
func (s *Store) Namespace() string {
	return s.DB.Name() + "." + s.Messages.Name()
}

// Command runs a command document on db and decodes the reply into out.
func (s *Store) Command(ctx context.Context, db *mongo.Database, op string, cmd bson.D, out interface{}) error {
	return s.Do(ctx, op, func(ctx context.Context) error {
		res := db.RunCommand(ctx, cmd)
		if out == nil {
			return res.Err()
		}
		return res.Decode(out)
	})
}

// Do runs fn under the store's retry policy.
func (s *Store) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	return Retry(ctx, s.retry, s.log, op, fn)
}
