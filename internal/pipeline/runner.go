package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"patchpipe/pkg/domain"
)

// Runner executes registered modules against the result store, one
// transaction per job. It reports per-job diagnostic lists and never treats a
// non-empty list as a transaction failure: partially successful jobs keep
// their rows.
type Runner struct {
	store   domain.Store
	logger  *zap.Logger
	metrics MetricsRecorder

	mu      sync.RWMutex
	modules map[string]Module
	order   []string
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the runner's metrics recorder.
func WithMetrics(rec MetricsRecorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// NewRunner constructs a runner over the given store.
func NewRunner(store domain.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:   store,
		logger:  zap.NewNop(),
		metrics: NopMetricsRecorder{},
		modules: make(map[string]Module),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a module. Names must be unique.
func (r *Runner) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, ok := r.modules[name]; ok {
		return fmt.Errorf("module %s already registered", name)
	}
	r.modules[name] = m
	r.order = append(r.order, name)
	return nil
}

// Module returns the registered module by name.
func (r *Runner) Module(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// ModuleNames returns registered module names in registration order.
func (r *Runner) ModuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Run executes the named module for each job in order. The returned map
// carries every job's diagnostic list (present only when non-empty); the
// error return covers runner-level failures such as an unknown module or a
// failed store commit.
func (r *Runner) Run(ctx context.Context, moduleName string, jobIDs []string) (map[string][]string, error) {
	module, ok := r.Module(moduleName)
	if !ok {
		return nil, fmt.Errorf("unknown module %s", moduleName)
	}
	results := make(map[string][]string)
	for _, jobID := range jobIDs {
		errs, err := r.runJob(ctx, module, jobID)
		if err != nil {
			return results, err
		}
		if len(errs) > 0 {
			results[jobID] = errs
		}
	}
	return results, nil
}

// RunParallel executes the named module across jobs with at most limit jobs
// in flight. Distinct jobs touch disjoint row sets, so per-job transactions
// are safe to interleave; within a job processing stays sequential.
func (r *Runner) RunParallel(ctx context.Context, moduleName string, jobIDs []string, limit int) (map[string][]string, error) {
	module, ok := r.Module(moduleName)
	if !ok {
		return nil, fmt.Errorf("unknown module %s", moduleName)
	}
	if limit < 1 {
		limit = 1
	}
	var mu sync.Mutex
	results := make(map[string][]string)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, jobID := range jobIDs {
		jobID := jobID
		g.Go(func() error {
			errs, err := r.runJob(ctx, module, jobID)
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				mu.Lock()
				results[jobID] = errs
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runJob(ctx context.Context, module Module, jobID string) ([]string, error) {
	logger := r.logger.With(zap.String("module", module.Name()), zap.String("job", jobID))
	logger.Info("job started")
	start := time.Now()

	var errs []string
	err := r.store.RunInTransaction(ctx, func(session domain.Session) error {
		errs = module.CreateDBEntries(ctx, Job{ID: jobID}, session)
		return nil
	})
	r.metrics.Observe(ctx, module.Name(), err == nil && len(errs) == 0, time.Since(start))
	if err != nil {
		logger.Error("job failed to commit", zap.Error(err))
		return errs, fmt.Errorf("run %s for job %s: %w", module.Name(), jobID, err)
	}
	if len(errs) > 0 {
		logger.Warn("job completed with diagnostics", zap.Int("count", len(errs)), zap.Strings("errors", errs))
	} else {
		logger.Info("job completed", zap.Duration("elapsed", time.Since(start)))
	}
	return errs, nil
}

// Drop deletes every record the named module previously wrote for the given
// jobs, returning how many were removed. Run after Drop to recompute from
// scratch.
func (r *Runner) Drop(ctx context.Context, moduleName string, jobIDs []string) (int, error) {
	module, ok := r.Module(moduleName)
	if !ok {
		return 0, fmt.Errorf("unknown module %s", moduleName)
	}
	var ids []string
	if err := r.store.View(ctx, func(view domain.SessionView) error {
		ids = module.RecordIDs(view, jobIDs)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.store.RunInTransaction(ctx, func(session domain.Session) error {
		return module.DropRecords(session, ids)
	}); err != nil {
		return 0, fmt.Errorf("drop %s records: %w", moduleName, err)
	}
	r.logger.Info("records dropped", zap.String("module", moduleName), zap.Int("count", len(ids)))
	return len(ids), nil
}
