package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"msgstore/config"
	"msgstore/database"
	"msgstore/handlers"
	"msgstore/indexes"
	"msgstore/middleware"
	"msgstore/planner"
	"msgstore/provision"
	"msgstore/repository"
	"msgstore/routes"
	"msgstore/service"
	"msgstore/shard"
)

// app holds the wired components and the resources Close releases.
type app struct {
	Handler *gin.Engine
	Router  *shard.Router

	store  *database.Store
	cache  *repository.RedisRouteCache
	cancel context.CancelFunc
	log    *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log}

	var (
		repo    repository.Repository
		catalog indexes.Catalog
		admin   provision.ClusterAdmin
		grower  handlers.ShardGrower
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		a.Router = shard.NewRouter(cfg.ShardNames, cfg.Sharding == config.ShardingOn)
		memRepo := repository.NewMemoryRepository(a.Router)
		repo, grower = memRepo, memRepo
		catalog = indexes.NewMemoryCatalog()
		admin = provision.StaticAdmin{Sharded: a.Router.IsSharded()}
		log.Warn("using in-memory store, data is not persisted")

	default:
		store, err := database.Connect(ctx, database.Options{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Retry: database.RetryPolicy{
				Attempts: cfg.StoreRetries,
				Base:     cfg.StoreRetryBase,
				Max:      database.DefaultRetryPolicy.Max,
			},
		}, log)
		if err != nil {
			return nil, err
		}
		a.store = store

		mongoAdmin := provision.NewMongoClusterAdmin(store)
		a.Router = shard.NewRouter(cfg.ShardNames, detectSharding(ctx, cfg.Sharding, mongoAdmin, log))
		repo = repository.NewMongoRepository(store, cfg.QueryUseHints, log)
		catalog = indexes.NewMongoCatalog(store)
		admin = mongoAdmin
	}

	var routeCache repository.RouteCache = repository.NopRouteCache{}
	if cfg.RedisAddr != "" {
		a.cache = repository.NewRedisRouteCache(cfg.RedisAddr, cfg.RouteCacheTTL, log)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.cache.Ping(pingCtx); err != nil {
			log.Warn("route cache unreachable, lookups will miss until it recovers",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()
		routeCache = a.cache
	}

	p := planner.New(a.Router, planner.Limits{Default: cfg.QueryDefaultLimit, Max: cfg.QueryMaxLimit})
	svc := service.NewMessageService(repo, p, routeCache, log)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go pruneLoop(bg, limiter)

	opts := routes.Options{
		ServiceName: cfg.ServiceName,
		CORSOrigins: cfg.CORSOrigins,
		RateLimiter: limiter,
		Messages:    handlers.NewMessageHandler(svc, log),
		Log:         log,
	}
	if cfg.AdminAPIEnabled {
		workflow := provision.NewWorkflow(admin, catalog, provision.Options{
			Database:  cfg.MongoDatabase,
			Namespace: cfg.MongoDatabase + "." + cfg.MongoCollection,
			Shard:     true,
		}, log)
		opts.Admin = handlers.NewAdminHandler(indexes.NewManager(catalog, log), workflow, a.Router, log)
		if grower != nil {
			opts.Admin.WithShardGrowth(grower)
		}
	}
	a.Handler = routes.SetupRouter(opts)
	return a, nil
}

// detectSharding resolves the SHARDING mode; auto asks the deployment.
func detectSharding(ctx context.Context, mode string, admin provision.ClusterAdmin, log *zap.Logger) bool {
	switch mode {
	case config.ShardingOn:
		return true
	case config.ShardingOff:
		return false
	}
	sharded, err := admin.IsSharded(ctx)
	if err != nil {
		log.Warn("sharding capability query failed, treating deployment as unsharded", zap.Error(err))
		return false
	}
	return sharded
}

func pruneLoop(ctx context.Context, limiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

func (a *app) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("closing route cache", zap.Error(err))
		}
	}
	if a.store == nil {
		return
	}
	if err := a.store.Disconnect(context.Background()); err != nil {
		a.log.Error(fmt.Sprintf("disconnecting from %s", a.store.Namespace()), zap.Error(err))
	}
}
