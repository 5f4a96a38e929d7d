package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
	"github.com/yurykabanov/sweeper/pkg/blobstore"
)

// Run results are stored even if the run's context is gone.
const finishTimeout = 10 * time.Second

const (
	OutcomeDeleted = "deleted"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

type ExecutorConfig struct {
	// Timeout for loading the catalog snapshot of a rule
	CatalogTimeout time.Duration

	// Timeout for deleting a single commit
	CommitTimeout time.Duration

	// Run markers older than this are considered left over by a dead process
	StaleAfter time.Duration

	// Max number of branches loaded concurrently
	SnapshotConcurrency int
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CatalogTimeout:      30 * time.Second,
		CommitTimeout:       60 * time.Second,
		StaleAfter:          time.Hour,
		SnapshotConcurrency: 4,
	}
}

type RunMetrics interface {
	RunStarted()
	RunFinished(RunSummary)
	CommitProcessed(outcome string, assets int, freedBytes int64)
	StaleRunsRecovered(int)
}

type noopMetrics struct{}

func (noopMetrics) RunStarted()                        {}
func (noopMetrics) RunFinished(RunSummary)             {}
func (noopMetrics) CommitProcessed(string, int, int64) {}
func (noopMetrics) StaleRunsRecovered(int)             {}

type ExecuteResult struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

type catalogError struct {
	cause error
}

func (e *catalogError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCatalogUnavailable, e.cause)
}

func (e *catalogError) Is(target error) bool {
	return target == ErrCatalogUnavailable
}

func (e *catalogError) Unwrap() error {
	return e.cause
}

// Executor previews and applies retention rules.
type Executor struct {
	logger logrus.FieldLogger

	rules     RuleRepository
	logs      LogRepository
	catalog   Catalog
	blobs     blobstore.Store
	schedules *Schedules
	metrics   RunMetrics

	config ExecutorConfig
	now    func() time.Time

	// parent context of asynchronous runs
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

func NewExecutor(
	logger logrus.FieldLogger,
	rules RuleRepository,
	logs LogRepository,
	catalog Catalog,
	blobs blobstore.Store,
	schedules *Schedules,
	metrics RunMetrics,
	config ExecutorConfig,
) *Executor {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	defaults := DefaultExecutorConfig()
	if config.CatalogTimeout <= 0 {
		config.CatalogTimeout = defaults.CatalogTimeout
	}
	if config.CommitTimeout <= 0 {
		config.CommitTimeout = defaults.CommitTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.SnapshotConcurrency <= 0 {
		config.SnapshotConcurrency = defaults.SnapshotConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		logger:    logger,
		rules:     rules,
		logs:      logs,
		catalog:   catalog,
		blobs:     blobs,
		schedules: schedules,
		metrics:   metrics,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]struct{}),
	}
}

// Preview evaluates the rule against the current catalog without changing anything.
func (e *Executor) Preview(ctx context.Context, ruleId string) (PreviewResponse, error) {
	rule, err := e.rules.FindById(ctx, ruleId)
	if err != nil {
		return PreviewResponse{}, err
	}

	candidates, err := e.evaluate(ctx, rule)
	if err != nil {
		return PreviewResponse{}, err
	}

	return newPreviewResponse(candidates), nil
}

// Execute takes the rule's run marker and applies the rule in background.
// The result of the run is stored in the rule's LastRunSummary.
func (e *Executor) Execute(ctx context.Context, ruleId string) (ExecuteResult, error) {
	if e.ctx.Err() != nil {
		return ExecuteResult{}, ErrShuttingDown
	}

	rule, startedAt, err := e.start(ctx, ruleId)
	if err != nil {
		return ExecuteResult{}, err
	}

	runCtx := appcontext.WithRuleId(appcontext.WithProjectId(e.ctx, rule.ProjectId), rule.Id)
	if requestId := appcontext.RequestIdFromContext(ctx); requestId != "" {
		runCtx = appcontext.WithRequestId(runCtx, requestId)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = e.run(runCtx, rule, startedAt)
	}()

	return ExecuteResult{
		Started: true,
		Message: fmt.Sprintf("Retention rule %q started", rule.Name),
	}, nil
}

// Run applies the rule synchronously.
func (e *Executor) Run(ctx context.Context, ruleId string) (RunSummary, error) {
	rule, startedAt, err := e.start(ctx, ruleId)
	if err != nil {
		return RunSummary{}, err
	}

	ctx = appcontext.WithRuleId(appcontext.WithProjectId(ctx, rule.ProjectId), rule.Id)

	return e.run(ctx, rule, startedAt)
}

func (e *Executor) start(ctx context.Context, ruleId string) (Rule, time.Time, error) {
	rule, err := e.rules.FindById(ctx, ruleId)
	if err != nil {
		return Rule{}, time.Time{}, err
	}

	startedAt := e.now()

	ok, err := e.rules.TryStartExecution(ctx, rule.Id, startedAt)
	if err != nil {
		return Rule{}, time.Time{}, errors.Wrap(err, "unable to set run marker")
	}

	if !ok {
		return Rule{}, time.Time{}, ErrAlreadyRunning
	}

	e.mu.Lock()
	e.running[rule.Id] = struct{}{}
	e.mu.Unlock()

	return rule, startedAt, nil
}

func (e *Executor) run(ctx context.Context, rule Rule, startedAt time.Time) (summary RunSummary, err error) {
	logger := appcontext.LoggerFromContext(e.logger, ctx)

	summary = RunSummary{StartedAt: startedAt, Errors: []string{}}

	e.metrics.RunStarted()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("retention run panicked: %v", r)
			summary.Failed = true
			summary.addError(err.Error())
		}

		summary = e.finish(ctx, rule, summary)
	}()

	logger.Info("Starting retention run")

	candidates, err := e.evaluate(ctx, rule)
	if err != nil {
		logger.WithError(err).Error("Aborting retention run")

		summary.Failed = true
		summary.addError(err.Error())

		return summary, err
	}

	logger.WithField("candidates", len(candidates)).Debug("Evaluated retention rule")

	for i, c := range candidates {
		if ctx.Err() != nil {
			summary.addError(fmt.Sprintf("run cancelled: %d commit(s) not processed", withAssets(candidates[i:])))
			break
		}

		// an include filter which matched nothing leaves nothing to delete
		if c.AssetCount == 0 {
			continue
		}

		ruleId := rule.Id
		entry, err := e.deleteCommit(ctx, rule.ProjectId, &ruleId, c)

		if errors.Is(err, blobstore.ErrUnavailable) {
			logger.WithError(err).Error("Blob store is unavailable, skipping remaining commits")
			summary.addError(fmt.Sprintf("%s: %d commit(s) skipped", blobstore.ErrUnavailable, withAssets(candidates[i:])))
			break
		}

		if err != nil {
			summary.addError(fmt.Sprintf("commit %s: %v", c.Sha, err))
		}

		if entry == nil {
			continue
		}

		if entry.IsPartial {
			summary.PartialCommits++
		} else {
			summary.DeletedCommits++
		}

		summary.DeletedAssets += entry.AssetCount
		summary.FreedBytes += entry.FreedBytes
	}

	return summary, nil
}

// withAssets counts candidates which still have something to delete.
func withAssets(candidates []PreviewCommit) int {
	n := 0
	for _, c := range candidates {
		if c.AssetCount > 0 {
			n++
		}
	}

	return n
}

func (e *Executor) finish(ctx context.Context, rule Rule, summary RunSummary) RunSummary {
	logger := appcontext.LoggerFromContext(e.logger, ctx)

	finishedAt := e.now()
	summary.FinishedAt = finishedAt

	fctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	// the rule may have been enabled or rescheduled while the run was going
	current, err := e.rules.FindById(fctx, rule.Id)
	if err != nil {
		logger.WithError(err).Warn("Unable to reload rule, scheduling from run snapshot")
		current = rule
	}

	err = e.rules.FinishExecution(fctx, rule.Id, summary, finishedAt, e.schedules.Next(current, finishedAt))
	if err != nil {
		logger.WithError(err).Error("Unable to store retention run result")
	}

	e.mu.Lock()
	delete(e.running, rule.Id)
	e.mu.Unlock()

	e.metrics.RunFinished(summary)

	logger.WithFields(logrus.Fields{
		"deleted_commits": summary.DeletedCommits,
		"partial_commits": summary.PartialCommits,
		"deleted_assets":  summary.DeletedAssets,
		"freed_bytes":     summary.FreedBytes,
		"errors":          len(summary.Errors),
		"failed":          summary.Failed,
	}).Info("Retention run finished")

	return summary
}

func (e *Executor) evaluate(ctx context.Context, rule Rule) ([]PreviewCommit, error) {
	sctx, cancel := context.WithTimeout(ctx, e.config.CatalogTimeout)
	defer cancel()

	loader := snapshotLoader{catalog: e.catalog, concurrency: e.config.SnapshotConcurrency}

	snapshot, err := loader.load(sctx, rule)
	if err != nil {
		return nil, &catalogError{cause: err}
	}

	return Evaluate(rule, snapshot, e.now())
}

// deleteCommit removes the commit's in-scope blobs and updates the catalog.
// A non-nil entry means the commit was deleted, even if err is also set.
func (e *Executor) deleteCommit(ctx context.Context, projectId string, ruleId *string, c PreviewCommit) (*RetentionLog, error) {
	ctx = appcontext.WithCommitSha(ctx, c.Sha)
	logger := appcontext.LoggerFromContext(e.logger, ctx)

	ctx, cancel := context.WithTimeout(ctx, e.config.CommitTimeout)
	defer cancel()

	paths := make([]string, 0, len(c.Assets))
	keys := make([]string, 0, len(c.Assets))
	seen := make(map[string]bool, len(c.Assets))

	for _, a := range c.Assets {
		paths = append(paths, a.Path)

		if !seen[a.BlobKey] {
			seen[a.BlobKey] = true
			keys = append(keys, a.BlobKey)
		}
	}

	shared, err := e.catalog.ReferencedBlobKeys(ctx, projectId, c.Sha, paths, keys)
	if err != nil {
		e.metrics.CommitProcessed(OutcomeError, 0, 0)
		return nil, errors.Wrap(err, "unable to check blob references")
	}

	gone := make(map[string]bool, len(keys))
	for _, k := range shared {
		gone[k] = true
	}

	var toDelete []string
	for _, k := range keys {
		if !gone[k] {
			toDelete = append(toDelete, k)
		}
	}

	var result blobstore.DeleteResult
	if len(toDelete) > 0 {
		result, err = e.blobs.DeleteObjects(ctx, toDelete)
		if err != nil {
			e.metrics.CommitProcessed(OutcomeError, 0, 0)
			return nil, err
		}
	}

	if len(result.Errors) > 0 {
		for _, k := range result.Deleted {
			gone[k] = true
		}

		// the catalog must not keep pointing to blobs which are gone
		var removed []string
		for _, a := range c.Assets {
			if gone[a.BlobKey] {
				removed = append(removed, a.Path)
			}
		}

		if len(removed) > 0 {
			if err := e.catalog.RemoveFilesFromCommit(ctx, projectId, c.Sha, removed); err != nil {
				logger.WithError(err).Error("Unable to remove deleted files from commit manifest")
			}
		}

		e.metrics.CommitProcessed(OutcomeError, 0, 0)

		return nil, errors.Wrapf(result.Errors[0], "%d of %d blob(s) could not be deleted", len(result.Errors), len(toDelete))
	}

	if c.IsPartial {
		err = e.catalog.RemoveFilesFromCommit(ctx, projectId, c.Sha, paths)
	} else {
		err = e.catalog.DeleteCommit(ctx, projectId, c.Sha)
	}
	if err != nil {
		e.metrics.CommitProcessed(OutcomeError, 0, 0)
		return nil, errors.Wrap(err, "unable to update catalog")
	}

	entry := RetentionLog{
		ProjectId:  projectId,
		RuleId:     ruleId,
		CommitSha:  c.Sha,
		Branch:     c.Branch,
		AssetCount: c.AssetCount,
		FreedBytes: result.FreedBytes,
		IsPartial:  c.IsPartial,
		DeletedAt:  e.now(),
	}

	outcome := OutcomeDeleted
	if c.IsPartial {
		outcome = OutcomePartial
	}
	e.metrics.CommitProcessed(outcome, entry.AssetCount, entry.FreedBytes)

	logger.WithFields(logrus.Fields{
		"assets":      entry.AssetCount,
		"freed_bytes": entry.FreedBytes,
		"partial":     entry.IsPartial,
	}).Info("Commit deleted")

	stored, err := e.logs.Append(ctx, entry)
	if err != nil {
		return &entry, errors.Wrap(err, "commit deleted but audit log row could not be written")
	}

	return &stored, nil
}

// DeleteCommit deletes a whole commit outside of any rule.
func (e *Executor) DeleteCommit(ctx context.Context, projectId, sha string) (RetentionLog, error) {
	ctx = appcontext.WithProjectId(ctx, projectId)

	commit, err := e.catalog.FindCommit(ctx, projectId, sha)
	if err != nil {
		return RetentionLog{}, err
	}

	aliases, err := e.catalog.ListAliases(ctx, projectId)
	if err != nil {
		return RetentionLog{}, errors.Wrap(err, "unable to list aliases")
	}

	for _, a := range aliases {
		if a.CommitSha == commit.Sha {
			return RetentionLog{}, invalid("sha", "commit is referenced by alias %q", a.Name)
		}
	}

	c := previewCommit(commit, commit.Branch, e.now().Sub(commit.DeployedAt), nil, "")

	entry, err := e.deleteCommit(ctx, projectId, nil, c)
	if entry == nil {
		return RetentionLog{}, err
	}

	return *entry, err
}

// Recover clears run markers left over by runs which are not alive anymore.
// Runs in progress in this process are never considered stale.
func (e *Executor) Recover(ctx context.Context) (int, error) {
	before := e.now().Add(-e.config.StaleAfter)

	e.mu.Lock()
	alive := make([]string, 0, len(e.running))
	for id := range e.running {
		alive = append(alive, id)
	}
	e.mu.Unlock()

	rules, err := e.rules.ClearStaleExecutions(ctx, before, alive)
	if err != nil {
		return 0, errors.Wrap(err, "unable to clear stale run markers")
	}

	for _, rule := range rules {
		ctx := appcontext.WithRuleId(appcontext.WithProjectId(ctx, rule.ProjectId), rule.Id)

		appcontext.LoggerFromContext(e.logger, ctx).
			WithField("execution_started_at", rule.ExecutionStartedAt).
			Warn("Cleared stale run marker")
	}

	e.metrics.StaleRunsRecovered(len(rules))

	return len(rules), nil
}

// Shutdown cancels asynchronous runs and waits until their results are stored.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
