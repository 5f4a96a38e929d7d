package domain

import (
	"context"
	"io/ioutil"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/blobstore"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(days float64) time.Time {
	return testNow.Add(-time.Duration(days * float64(day)))
}

// region memoryRules
type memoryRules struct {
	mu    sync.Mutex
	rules map[string]Rule
}

func newMemoryRules(rules ...Rule) *memoryRules {
	m := &memoryRules{rules: make(map[string]Rule)}
	for _, r := range rules {
		m.rules[r.Id] = r
	}
	return m
}

func (m *memoryRules) Create(ctx context.Context, rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules[rule.Id] = rule
	return nil
}

func (m *memoryRules) Update(ctx context.Context, rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rules[rule.Id]
	if !ok {
		return ErrNotFound
	}

	rule.LastRunAt = current.LastRunAt
	rule.LastRunSummary = current.LastRunSummary
	rule.ExecutionStartedAt = current.ExecutionStartedAt
	m.rules[rule.Id] = rule

	return nil
}

func (m *memoryRules) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rules, id)
	return nil
}

func (m *memoryRules) FindById(ctx context.Context, id string) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return rule, nil
}

func (m *memoryRules) FindByProject(ctx context.Context, projectId string) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Rule
	for _, r := range m.rules {
		if r.ProjectId == projectId {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *memoryRules) FindDue(ctx context.Context, now time.Time) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Rule
	for _, r := range m.rules {
		if r.Enabled && r.ExecutionStartedAt == nil && r.NextRunAt != nil && !r.NextRunAt.After(now) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *memoryRules) TryStartExecution(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok || rule.ExecutionStartedAt != nil {
		return false, nil
	}

	rule.ExecutionStartedAt = &startedAt
	m.rules[id] = rule

	return true, nil
}

func (m *memoryRules) FinishExecution(ctx context.Context, id string, summary RunSummary, lastRunAt time.Time, nextRunAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil
	}

	rule.LastRunSummary = &summary
	rule.LastRunAt = &lastRunAt
	rule.ExecutionStartedAt = nil
	if rule.Enabled {
		rule.NextRunAt = nextRunAt
	} else {
		rule.NextRunAt = nil
	}
	m.rules[id] = rule

	return nil
}

func (m *memoryRules) ClearStaleExecutions(ctx context.Context, startedBefore time.Time, exclude []string) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Rule
	for id, r := range m.rules {
		if r.ExecutionStartedAt == nil || !r.ExecutionStartedAt.Before(startedBefore) || contains(exclude, id) {
			continue
		}

		result = append(result, r)
		r.ExecutionStartedAt = nil
		m.rules[id] = r
	}
	return result, nil
}

func (m *memoryRules) get(id string) Rule {
	rule, _ := m.FindById(context.Background(), id)
	return rule
}

// endregion

// region memoryLogs
type memoryLogs struct {
	mu      sync.Mutex
	entries []RetentionLog
}

func (m *memoryLogs) Append(ctx context.Context, entry RetentionLog) (RetentionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Id = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)

	return entry, nil
}

func (m *memoryLogs) all() []RetentionLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]RetentionLog(nil), m.entries...)
}

// endregion

// region memoryCatalog
type memoryCatalog struct {
	mu      sync.Mutex
	commits []Commit
	aliases []Alias

	// returned from every read when set
	err error
}

func (m *memoryCatalog) ListBranches(ctx context.Context, projectId string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	seen := make(map[string]bool)
	var result []string
	for _, c := range m.commits {
		if c.ProjectId == projectId && !seen[c.Branch] {
			seen[c.Branch] = true
			result = append(result, c.Branch)
		}
	}
	sort.Strings(result)

	return result, nil
}

func (m *memoryCatalog) ListCommits(ctx context.Context, projectId, branch string) ([]Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	var result []Commit
	for _, c := range m.commits {
		if c.ProjectId == projectId && c.Branch == branch {
			c.Assets = append([]Asset(nil), c.Assets...)
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *memoryCatalog) ListAliases(ctx context.Context, projectId string) ([]Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	var result []Alias
	for _, a := range m.aliases {
		if a.ProjectId == projectId {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *memoryCatalog) FindCommit(ctx context.Context, projectId, sha string) (Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.commits {
		if c.ProjectId == projectId && c.Sha == sha {
			return c, nil
		}
	}
	return Commit{}, ErrNotFound
}

func (m *memoryCatalog) DeleteCommit(ctx context.Context, projectId, sha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []Commit
	for _, c := range m.commits {
		if c.ProjectId == projectId && c.Sha == sha {
			continue
		}
		kept = append(kept, c)
	}
	m.commits = kept

	return nil
}

func (m *memoryCatalog) RemoveFilesFromCommit(ctx context.Context, projectId, sha string, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.commits {
		if c.ProjectId != projectId || c.Sha != sha {
			continue
		}

		var kept []Asset
		for _, a := range c.Assets {
			if !contains(paths, a.Path) {
				kept = append(kept, a)
			}
		}
		m.commits[i].Assets = kept
	}

	return nil
}

func (m *memoryCatalog) ReferencedBlobKeys(ctx context.Context, projectId, sha string, paths []string, keys []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	var result []string
	for _, c := range m.commits {
		for _, a := range c.Assets {
			if c.ProjectId == projectId && c.Sha == sha && contains(paths, a.Path) {
				continue
			}
			if contains(keys, a.BlobKey) && !contains(result, a.BlobKey) {
				result = append(result, a.BlobKey)
			}
		}
	}
	return result, nil
}

func (m *memoryCatalog) commit(sha string) (Commit, bool) {
	c, err := m.FindCommit(context.Background(), "p1", sha)
	return c, err == nil
}

// endregion

// region memoryBlobs
type memoryBlobs struct {
	mu    sync.Mutex
	blobs map[string]int64

	failing     map[string]bool
	unavailable bool
	calls       int

	// DeleteObjects blocks until closed when set
	release chan struct{}

	// keys which hold DeleteObjects until its context is done
	hanging map[string]bool
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{
		blobs:   make(map[string]int64),
		failing: make(map[string]bool),
		hanging: make(map[string]bool),
	}
}

func (m *memoryBlobs) hangs(keys []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		if m.hanging[k] {
			return true
		}
	}

	return false
}

func (m *memoryBlobs) DeleteObjects(ctx context.Context, keys []string) (blobstore.DeleteResult, error) {
	if m.release != nil {
		<-m.release
	}

	if m.hangs(keys) {
		<-ctx.Done()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	var result blobstore.DeleteResult

	if m.unavailable {
		return result, errors.Wrap(blobstore.ErrUnavailable, "connection refused")
	}

	for _, k := range keys {
		if m.hanging[k] {
			result.Errors = append(result.Errors, &blobstore.ObjectError{Op: "Delete", Key: k, Err: ctx.Err()})
			continue
		}

		if m.failing[k] {
			result.Errors = append(result.Errors, &blobstore.ObjectError{Op: "Delete", Key: k, Err: blobstore.ErrAccessDenied})
			continue
		}

		result.FreedBytes += m.blobs[k]
		result.Deleted = append(result.Deleted, k)
		delete(m.blobs, k)
	}

	return result, nil
}

func (m *memoryBlobs) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[key]
	return ok
}

// endregion
