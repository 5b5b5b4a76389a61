// Package provision brings a deployment's message collection to the
// required index set and, when the cluster supports it, hash-shards the
// collection on chatId.
//
// A run is idempotent. It returns a structured Report; printing is left to
// Report.Render.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"msgstore/indexes"
	"msgstore/models"
)

// ErrAlreadySharded is returned by a ClusterAdmin when the database or
// collection is already partitioned. The workflow treats it as success.
var ErrAlreadySharded = errors.New("already sharded")

// ErrShardKeyMismatch means the collection is sharded on a key other than
// {chatId: hashed}, so conversation queries cannot be targeted.
var ErrShardKeyMismatch = errors.New("collection is sharded on a different key")

// ClusterAdmin runs the administration commands a run needs.
type ClusterAdmin interface {
	Ping(ctx context.Context) error
	// IsSharded reports whether the target is a sharded cluster router.
	IsSharded(ctx context.Context) (bool, error)
	EnableSharding(ctx context.Context, database string) error
	ShardCollection(ctx context.Context, namespace, field string) error
	// ShardKeyOf returns the shard key of namespace, or nil when the
	// collection is not sharded.
	ShardKeyOf(ctx context.Context, namespace string) ([]indexes.Key, error)
}

type Options struct {
	Database   string
	Namespace  string
	VerifyOnly bool
	// Shard enables the sharding step on clusters that support it.
	Shard bool
}

type ShardingOutcome string

const (
	ShardingApplied      ShardingOutcome = "sharded"
	ShardingAlready      ShardingOutcome = "already-sharded"
	ShardingSkipped      ShardingOutcome = "skipped"
	ShardingNoPrivileges ShardingOutcome = "insufficient-privilege"
	ShardingFailed       ShardingOutcome = "failed"
)

type ShardingResult struct {
	Outcome ShardingOutcome `json:"outcome"`
	Detail  string          `json:"detail,omitempty"`
	Err     error           `json:"-"`
}

type Workflow struct {
	admin   ClusterAdmin
	catalog indexes.Catalog
	opts    Options
	log     *zap.Logger
}

func NewWorkflow(admin ClusterAdmin, catalog indexes.Catalog, opts Options, log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{admin: admin, catalog: catalog, opts: opts, log: log}
}

// VerifyOnly returns a copy of the workflow that only pings and verifies.
func (w *Workflow) VerifyOnly() *Workflow {
	cp := *w
	cp.opts.VerifyOnly = true
	return &cp
}

// Run pings the target, ensures every required index, applies sharding and
// verifies the final index set. In verify-only mode it only pings and
// verifies. The returned error is non-nil only when the target is
// unreachable; everything else is in the report.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		Namespace:  w.opts.Namespace,
		VerifyOnly: w.opts.VerifyOnly,
		StartedAt:  time.Now(),
	}
	log := w.log.With(zap.String("run_id", report.RunID), zap.String("namespace", w.opts.Namespace))

	if err := w.admin.Ping(ctx); err != nil {
		return nil, fmt.Errorf("provision %s: target unreachable: %w", w.opts.Namespace, err)
	}

	sharded, err := w.admin.IsSharded(ctx)
	if err != nil {
		log.Warn("capability query failed, assuming unsharded deployment", zap.Error(err))
		sharded = false
	}
	report.Sharded = sharded
	required := indexes.Required(sharded)
	manager := indexes.NewManager(w.catalog, log)

	if w.opts.VerifyOnly {
		report.Sharding = ShardingResult{Outcome: ShardingSkipped, Detail: "verify-only run"}
	} else {
		report.Indexes = manager.EnsureAll(ctx, required)
		report.Sharding = w.applySharding(ctx, sharded)
		log.Info("sharding step finished",
			zap.String("outcome", string(report.Sharding.Outcome)),
			zap.String("detail", report.Sharding.Detail))
	}

	live, err := manager.ListIndexes(ctx)
	if err != nil {
		report.VerifyErr = err
		log.Error("listing indexes failed", zap.Error(err))
	}
	for _, d := range live {
		report.Live = append(report.Live, d.Name)
	}
	report.Missing = indexes.Diff(required, live)
	report.Duration = time.Since(report.StartedAt)

	log.Info("provisioning finished",
		zap.Bool("ok", report.OK()),
		zap.Strings("missing", report.Missing),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (w *Workflow) applySharding(ctx context.Context, sharded bool) ShardingResult {
	if !sharded {
		return ShardingResult{Outcome: ShardingSkipped, Detail: "deployment is not a sharded cluster"}
	}
	if !w.opts.Shard {
		return ShardingResult{Outcome: ShardingSkipped, Detail: "sharding step disabled"}
	}

	field := models.FieldChatID
	err := w.admin.EnableSharding(ctx, w.opts.Database)
	if err == nil || errors.Is(err, ErrAlreadySharded) {
		err = w.admin.ShardCollection(ctx, w.opts.Namespace, field)
	}

	switch {
	case err == nil:
		return ShardingResult{Outcome: ShardingApplied, Detail: fmt.Sprintf("%s on {%s: hashed}", w.opts.Namespace, field)}
	case errors.Is(err, ErrAlreadySharded):
		return w.checkShardKey(ctx)
	case errors.Is(err, models.ErrInsufficientPrivilege):
		return ShardingResult{Outcome: ShardingNoPrivileges, Detail: "cluster administration privileges are required; indexes were still ensured", Err: err}
	}
	return ShardingResult{Outcome: ShardingFailed, Detail: err.Error(), Err: err}
}

// checkShardKey decides an "already sharded" answer: only the chatId hashed
// key counts as done.
func (w *Workflow) checkShardKey(ctx context.Context) ShardingResult {
	want := RequiredShardKey()
	keys, err := w.admin.ShardKeyOf(ctx, w.opts.Namespace)
	switch {
	case errors.Is(err, models.ErrInsufficientPrivilege):
		return ShardingResult{Outcome: ShardingNoPrivileges, Detail: "collection is already sharded; reading its shard key needs cluster privileges", Err: err}
	case err != nil:
		return ShardingResult{Outcome: ShardingFailed, Detail: fmt.Sprintf("reading shard key: %v", err), Err: err}
	case !indexes.SameKeys(keys, want):
		err = fmt.Errorf("%w: %s is sharded on %s, want %s",
			ErrShardKeyMismatch, w.opts.Namespace, indexes.KeySpecOf(keys), indexes.KeySpecOf(want))
		return ShardingResult{Outcome: ShardingFailed, Detail: err.Error(), Err: err}
	}
	return ShardingResult{Outcome: ShardingAlready, Detail: fmt.Sprintf("%s on %s", w.opts.Namespace, indexes.KeySpecOf(keys))}
}

// RequiredShardKey is the key pattern the collection must be sharded on.
func RequiredShardKey() []indexes.Key {
	return []indexes.Key{{Field: models.FieldChatID, Order: indexes.Hashed}}
}

// Report is the structured result of one run.
type Report struct {
	RunID      string           `json:"runId"`
	Namespace  string           `json:"namespace"`
	Sharded    bool             `json:"sharded"`
	VerifyOnly bool             `json:"verifyOnly"`
	StartedAt  time.Time        `json:"startedAt"`
	Duration   time.Duration    `json:"duration"`
	Indexes    []indexes.Result `json:"indexes"`
	Sharding   ShardingResult   `json:"sharding"`
	Live       []string         `json:"live"`
	Missing    []string         `json:"missing"`
	VerifyErr  error            `json:"-"`
}

// OK is the pass verdict: no failed index, no missing index, the final
// listing succeeded and sharding did not fail. Missing privileges are
// informational.
func (r *Report) OK() bool {
	if r.VerifyErr != nil || len(r.Missing) > 0 || r.Sharding.Outcome == ShardingFailed {
		return false
	}
	for _, res := range r.Indexes {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Err combines every failure recorded in the report.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Indexes {
		err = multierr.Append(err, res.Err)
	}
	if r.Sharding.Outcome == ShardingFailed {
		err = multierr.Append(err, r.Sharding.Err)
	}
	err = multierr.Append(err, r.VerifyErr)
	if len(r.Missing) > 0 {
		err = multierr.Append(err, fmt.Errorf("missing indexes: %v", r.Missing))
	}
	return err
}
