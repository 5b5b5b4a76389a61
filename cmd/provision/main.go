// Command provision creates the message collection's indexes, applies hash
// sharding on chatId when the target is a sharded cluster, and prints a
// verification report. It exits non-zero when the report fails or the
// target cannot be reached.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"msgstore/config"
	"msgstore/database"
	"msgstore/indexes"
	"msgstore/observability"
	"msgstore/provision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var (
		uri        = flag.String("uri", cfg.MongoURI, "MongoDB connection string")
		db         = flag.String("db", cfg.MongoDatabase, "database name")
		collection = flag.String("collection", cfg.MongoCollection, "collection name")
		verifyOnly = flag.Bool("verify-only", false, "only verify the index set, change nothing")
		shardStep  = flag.Bool("shard", true, "shard the collection on {chatId: hashed} when the target is a sharded cluster")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall deadline for the run")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: provision [flags]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := observability.NewLogger(cfg.ServiceName+"-provision", cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	os.Exit(run(*uri, *db, *collection, *verifyOnly, *shardStep, *timeout, cfg, logger))
}

func run(uri, db, collection string, verifyOnly, shardStep bool, timeout time.Duration, cfg *config.Config, logger *zap.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := database.Connect(ctx, database.Options{
		URI:        uri,
		Database:   db,
		Collection: collection,
		Retry: database.RetryPolicy{
			Attempts: cfg.StoreRetries,
			Base:     cfg.StoreRetryBase,
			Max:      database.DefaultRetryPolicy.Max,
		},
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}
	defer func() {
		if err := store.Disconnect(context.Background()); err != nil {
			logger.Warn("disconnect failed", zap.Error(err))
		}
	}()

	workflow := provision.NewWorkflow(
		provision.NewMongoClusterAdmin(store),
		indexes.NewMongoCatalog(store),
		provision.Options{
			Database:   db,
			Namespace:  store.Namespace(),
			VerifyOnly: verifyOnly,
			Shard:      shardStep,
		},
		logger,
	)

	report, err := workflow.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		return 1
	}
	if err := report.Render(os.Stdout); err != nil {
		logger.Error("rendering report", zap.Error(err))
	}
	if !report.OK() {
		logger.Error("provisioning failed", zap.Error(report.Err()))
		return 1
	}
	return 0
}
