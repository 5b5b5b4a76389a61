package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"msgstore/indexes"
	"msgstore/models"
	"msgstore/provision"
	"msgstore/shard"
)

const provisionTimeout = 5 * time.Minute

// ShardGrower adds a shard to the ring and rehomes the records it wins.
type ShardGrower interface {
	AddShard(name string) int
}

// AdminHandler exposes index verification and provisioning runs.
type AdminHandler struct {
	manager  *indexes.Manager
	workflow *provision.Workflow
	router   *shard.Router
	grower   ShardGrower
	log      *zap.Logger
}

func NewAdminHandler(manager *indexes.Manager, workflow *provision.Workflow, router *shard.Router, log *zap.Logger) *AdminHandler {
	return &AdminHandler{manager: manager, workflow: workflow, router: router, log: log}
}

// WithShardGrowth enables POST /api/admin/shards. Without it the endpoint
// answers 501, since a real cluster manages its own shard membership.
func (h *AdminHandler) WithShardGrowth(g ShardGrower) *AdminHandler {
	h.grower = g
	return h
}

type addShardRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// AddShard serves POST /api/admin/shards.
func (h *AdminHandler) AddShard(c *gin.Context) {
	if h.grower == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "Unsupported",
			"message": "shard membership is managed by the cluster",
		})
		return
	}
	if !h.router.IsSharded() {
		writeError(c, h.log, fmt.Errorf("%w: deployment is not sharded", models.ErrInvalidFieldValue))
		return
	}

	var req addShardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, invalidParam("body", err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(c, h.log, invalidParam("body", err.Error()))
		return
	}

	moved := h.grower.AddShard(req.Name)
	h.log.Info("shard added",
		zap.String("shard", req.Name),
		zap.Int("moved", moved),
		zap.Strings("shards", h.router.Shards()))
	c.JSON(http.StatusOK, gin.H{
		"shards": h.router.Shards(),
		"moved":  moved,
	})
}

// ListIndexes serves GET /api/admin/indexes.
func (h *AdminHandler) ListIndexes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	live, err := h.manager.ListIndexes(ctx)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	missing := indexes.Diff(indexes.Required(h.router.IsSharded()), live)
	if missing == nil {
		missing = []string{}
	}

	field, kind := h.router.ShardKey()
	c.JSON(http.StatusOK, gin.H{
		"sharded":  h.router.IsSharded(),
		"shards":   h.router.Shards(),
		"shardKey": gin.H{field: kind},
		"live":     live,
		"missing":  missing,
		"ok":       len(missing) == 0,
	})
}

// Provision serves POST /api/admin/provision. ?verifyOnly=true runs the
// verification alone.
func (h *AdminHandler) Provision(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), provisionTimeout)
	defer cancel()

	wf := h.workflow
	if c.Query("verifyOnly") == "true" {
		wf = wf.VerifyOnly()
	}

	report, err := wf.Run(ctx)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":     report.OK(),
		"report": report,
	})
}
