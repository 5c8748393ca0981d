// Package governance implements the content governance and lifecycle
// engine: branch/review/merge workflow, DDLC phase tracking, the
// fork/dependency graph, and the per-item audit trail. Every operation is
// a synchronous read-modify-write against the ContentItem store,
// serialized per item so concurrent calls never lose updates.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/detectops/contentgov/content"
	"github.com/detectops/contentgov/storage"
)

// MainBranch is the branch freshly authored and merged content lives on.
const MainBranch = "main"

// Engine executes governance operations against a ContentItem store.
type Engine struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	// locks serializes operations per item id. Two-item operations
	// acquire both locks in lexicographic id order.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	// prMu guards the pull request counter.
	prMu     sync.Mutex
	nextPR   int
	prSeeded bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the engine's time source. Used by tests to make
// timestamps deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over the given store.
func NewEngine(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
		nextPR: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Store exposes the underlying store for read-only consumers such as the
// analytics aggregator.
func (e *Engine) Store() storage.Store {
	return e.store
}

// itemLock returns the mutex for an item id, creating it on first use.
func (e *Engine) itemLock(id string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	return mu
}

// lockItem locks a single item for the duration of an operation.
func (e *Engine) lockItem(id string) func() {
	mu := e.itemLock(id)
	mu.Lock()
	return mu.Unlock
}

// lockPair locks two items in lexicographic id order to avoid deadlock.
func (e *Engine) lockPair(a, b string) func() {
	if a == b {
		return e.lockItem(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	muA := e.itemLock(first)
	muB := e.itemLock(second)
	muA.Lock()
	muB.Lock()
	return func() {
		muB.Unlock()
		muA.Unlock()
	}
}

// allocatePR mints a pull request number unique among all PRs ever
// issued over the store. On first use the counter is seeded from the
// highest number already stored, so a restarted engine never reissues a
// number held by an open pull request.
func (e *Engine) allocatePR(ctx context.Context) (int, error) {
	e.prMu.Lock()
	defer e.prMu.Unlock()

	if !e.prSeeded {
		items, err := e.store.List(ctx, storage.Filter{})
		if err != nil {
			return 0, fmt.Errorf("seed pull request counter: %w", err)
		}
		for _, item := range items {
			if item.GitInfo.PullRequest != nil && *item.GitInfo.PullRequest >= e.nextPR {
				e.nextPR = *item.GitInfo.PullRequest + 1
			}
		}
		e.prSeeded = true
	}

	pr := e.nextPR
	e.nextPR++
	return pr, nil
}

// newCommitToken mints an opaque commit token.
func newCommitToken() string {
	return uuid.New().String()
}

// getItem loads an item, mapping storage misses to ErrNotFound.
func (e *Engine) getItem(ctx context.Context, id string) (*content.ContentItem, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return item, nil
}

// appendChange records one audit-trail entry on the item: the version is
// incremented by exactly one, the entry carries the new version, and
// updatedAt and the contributor set are refreshed. Every mutating
// operation that changes an item's own state goes through here.
func (e *Engine) appendChange(item *content.ContentItem, actor, message string, changes []string, transition *content.PhaseTransition) {
	now := e.now()
	item.Version++
	item.UpdatedAt = now
	item.Collaboration.AddContributor(actor)
	item.Collaboration.LastModifiedBy = actor
	item.Collaboration.ChangeLog = append(item.Collaboration.ChangeLog, content.ChangeEntry{
		Version:    item.Version,
		Author:     actor,
		Timestamp:  now,
		Message:    message,
		Changes:    changes,
		Transition: transition,
	})
}

// NewItemParams describes a freshly generated artifact being registered
// with the engine by the ingestion/templating collaborator.
type NewItemParams struct {
	ID           string
	ContentType  content.ContentType
	Name         string
	Description  string
	Category     string
	Severity     string
	ContentData  []byte
	Requirements []byte
}

// CreateItem registers a new item at version 1, status draft, phase
// requirement, on the main branch with mergeStatus merged: freshly
// authored content is considered already current.
func (e *Engine) CreateItem(ctx context.Context, actor string, params NewItemParams) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrActorRequired
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := e.now()
	item := &content.ContentItem{
		ID:           id,
		ContentType:  params.ContentType,
		Name:         params.Name,
		Description:  params.Description,
		Category:     params.Category,
		Severity:     params.Severity,
		ContentData:  params.ContentData,
		Requirements: params.Requirements,
		Status:       content.StatusDraft,
		Version:      1,
		DDLCPhase:    content.PhaseRequirement,
		TestStatus:   content.TestNone,
		GitInfo: content.GitInfo{
			Branch:       MainBranch,
			Commit:       newCommitToken(),
			Author:       actor,
			Message:      fmt.Sprintf("Created %s", params.ContentType),
			ReviewStatus: content.ReviewNone,
			MergeStatus:  content.MergeMerged,
		},
		Collaboration: content.Collaboration{
			Contributors:   []string{actor},
			LastModifiedBy: actor,
			ChangeLog: []content.ChangeEntry{{
				Version:   1,
				Author:    actor,
				Timestamp: now,
				Message:   fmt.Sprintf("Created %s", params.ContentType),
			}},
			Reviews: []content.Review{},
		},
		Dependencies: []string{},
		Dependents:   []string{},
		Forks:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	if err := e.store.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	e.logger.Info("content item created",
		slog.String("id", item.ID),
		slog.String("content_type", string(item.ContentType)),
		slog.String("actor", actor))

	return item, nil
}

// GetItem returns the item with the given id.
func (e *Engine) GetItem(ctx context.Context, id string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.getItem(ctx, id)
}

// ListItems returns all items matching the filter.
func (e *Engine) ListItems(ctx context.Context, filter storage.Filter) ([]*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.store.List(ctx, filter)
}

// RecordTestResults records a test run against an item, appending a
// change-log entry and setting testStatus to validated when every test
// passed, failed otherwise.
func (e *Engine) RecordTestResults(ctx context.Context, itemID, actor string, total, passed, failed int) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrActorRequired
	}
	if total < 0 || passed < 0 || failed < 0 || passed+failed > total {
		return nil, &content.ValidationError{Field: "test_results", Message: "counts must be non-negative and passed+failed must not exceed total"}
	}

	unlock := e.lockItem(itemID)
	defer unlock()

	item, err := e.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	item.TestResults = &content.TestResults{Total: total, Passed: passed, Failed: failed}
	if failed == 0 && passed == total && total > 0 {
		item.TestStatus = content.TestValidated
	} else {
		item.TestStatus = content.TestFailed
	}

	e.appendChange(item, actor,
		fmt.Sprintf("Recorded test results: %d/%d passed", passed, total),
		[]string{"test_results", "test_status"}, nil)

	if err := e.store.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("store item: %w", err)
	}

	return item, nil
}
