package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"msgstore/handlers"
	"msgstore/middleware"
)

type Options struct {
	ServiceName string
	CORSOrigins []string
	RateLimiter *middleware.IPRateLimiter
	Messages    *handlers.MessageHandler
	Admin       *handlers.AdminHandler // nil disables the admin API
	Log         *zap.Logger
}

func SetupRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(opts.Log),
		middleware.AccessLog(opts.Log),
		middleware.Metrics(),
	)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": opts.ServiceName,
			"time":    time.Now().Unix(),
		})
	}
	router.GET("/health", health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/health", health)
	if opts.RateLimiter != nil {
		api.Use(middleware.RateLimit(opts.RateLimiter))
	}

	chats := api.Group("/chats/:chatId/messages")
	chats.GET("", opts.Messages.SearchChat)
	chats.GET("/latest", opts.Messages.Latest)
	chats.PATCH("/:msgId/status", opts.Messages.AdvanceStatus)
	chats.POST("/:msgId/withdraw", opts.Messages.Withdraw)

	api.GET("/messages/search", opts.Messages.FreeSearch)
	api.GET("/messages/:msgId", opts.Messages.GetMessage)
	api.POST("/messages", opts.Messages.InsertMessage)

	if opts.Admin != nil {
		admin := api.Group("/admin")
		admin.GET("/indexes", opts.Admin.ListIndexes)
		admin.POST("/provision", opts.Admin.Provision)
		admin.POST("/shards", opts.Admin.AddShard)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "NotFound",
				"message": "endpoint not found",
				"path":    c.Request.URL.Path,
			})
			return
		}
		c.String(http.StatusNotFound, "404 page not found")
	})

	return router
}
