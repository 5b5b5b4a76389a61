package indexes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"msgstore/database"
	"msgstore/models"
	"msgstore/observability"
)

// ErrIndexExists is returned by a Catalog when the server answers that the
// index already exists, is being built by someone else, or exists with the
// same keys under another name.
var ErrIndexExists = errors.New("index already exists")

// Catalog is the live index set of the message collection.
type Catalog interface {
	Create(ctx context.Context, d Declaration) error
	List(ctx context.Context) ([]Declaration, error)
}

type Outcome string

const (
	Created       Outcome = "created"
	AlreadyExists Outcome = "already-existed"
	Failed        Outcome = "failed"
)

// Result is the outcome of one EnsureIndex call. Err is set only when
// Outcome is Failed and wraps models.ErrIndexCreationFailed.
type Result struct {
	Index    Declaration   `json:"index"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

func (r Result) OK() bool {
	return r.Outcome != Failed
}

// Manager ensures declarations against a Catalog.
type Manager struct {
	catalog Catalog
	log     *zap.Logger
	flight  singleflight.Group
}

func NewManager(catalog Catalog, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{catalog: catalog, log: log}
}

// EnsureIndex creates d unless an index of the same name already exists.
// It is idempotent by name: concurrent calls for the same name in this
// process share one attempt, and a concurrent creation by another process is
// reported as AlreadyExists, never as an error.
func (m *Manager) EnsureIndex(ctx context.Context, d Declaration) Result {
	v, _, _ := m.flight.Do(d.Name, func() (interface{}, error) {
		return m.ensure(ctx, d), nil
	})
	res := v.(Result)

	observability.IndexEnsureTotal.WithLabelValues(d.Name, string(res.Outcome)).Inc()
	return res
}

func (m *Manager) ensure(ctx context.Context, d Declaration) Result {
	start := time.Now()
	res := Result{Index: d}
	finish := func(o Outcome, err error) Result {
		res.Outcome = o
		res.Duration = time.Since(start)
		if err != nil {
			res.Err = fmt.Errorf("%w: %s: %w", models.ErrIndexCreationFailed, d.Name, err)
			res.Reason = err.Error()
			m.log.Warn("index ensure failed", zap.String("index", d.Name), zap.Error(err))
		} else {
			m.log.Info("index ensured", zap.String("index", d.Name), zap.String("outcome", string(o)))
		}
		return res
	}

	live, err := m.catalog.List(ctx)
	if err != nil {
		return finish(Failed, fmt.Errorf("list indexes: %w", err))
	}
	for _, existing := range live {
		if existing.Name != d.Name {
			continue
		}
		if !SameKeys(existing.Keys, d.Keys) {
			return finish(Failed, fmt.Errorf("index exists with keys %s, want %s", existing.KeySpec(), d.KeySpec()))
		}
		return finish(AlreadyExists, nil)
	}
	// sharding an unindexed collection creates {chatId: hashed} as chatId_hashed
	if other, ok := withKeys(live, d.Keys); ok {
		res.Reason = "present as " + other.Name
		return finish(AlreadyExists, nil)
	}

	switch err := m.catalog.Create(ctx, d); {
	case err == nil:
		return finish(Created, nil)
	case isExists(err):
		if live, lerr := m.catalog.List(ctx); lerr == nil {
			if other, ok := withKeys(live, d.Keys); ok && other.Name != d.Name {
				res.Reason = "present as " + other.Name
			}
		}
		return finish(AlreadyExists, nil)
	default:
		return finish(Failed, err)
	}
}

func isExists(err error) bool {
	return errors.Is(err, ErrIndexExists) ||
		database.HasCode(err,
			database.CodeIndexAlreadyExists,
			database.CodeIndexOptionsConflict,
			database.CodeIndexBuildAlreadyInProgress)
}

func withKeys(live []Declaration, keys []Key) (Declaration, bool) {
	for _, d := range live {
		if SameKeys(d.Keys, keys) {
			return d, true
		}
	}
	return Declaration{}, false
}

// EnsureAll ensures every declaration in order. A failure is recorded in its
// own Result and never stops the remaining declarations.
func (m *Manager) EnsureAll(ctx context.Context, decls []Declaration) []Result {
	results := make([]Result, 0, len(decls))
	for _, d := range decls {
		results = append(results, m.EnsureIndex(ctx, d))
	}
	return results
}

// ListIndexes returns the live index set.
func (m *Manager) ListIndexes(ctx context.Context) ([]Declaration, error) {
	return m.catalog.List(ctx)
}

// SameKeys reports whether two key patterns are identical, order included.
func SameKeys(a, b []Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
