package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/detectops/contentgov/content"
	"github.com/detectops/contentgov/storage"
)

func testEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(store, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	return engine, store
}

func createItem(t *testing.T, e *Engine, id string) *content.ContentItem {
	t.Helper()
	item, err := e.CreateItem(context.Background(), "alice", NewItemParams{
		ID:          id,
		ContentType: content.TypeCorrelation,
		Name:        "Lateral Movement via PsExec",
		Description: "Detects remote service creation",
		Severity:    "high",
		ContentData: []byte(`{"query":"process.name = psexec.exe"}`),
	})
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	return item
}

func TestCreateItem(t *testing.T) {
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	if item.Version != 1 {
		t.Errorf("Version = %d, want 1", item.Version)
	}
	if item.Status != content.StatusDraft {
		t.Errorf("Status = %s, want draft", item.Status)
	}
	if item.DDLCPhase != content.PhaseRequirement {
		t.Errorf("DDLCPhase = %s, want requirement", item.DDLCPhase)
	}
	if item.GitInfo.Branch != MainBranch {
		t.Errorf("Branch = %s, want main", item.GitInfo.Branch)
	}
	if item.GitInfo.MergeStatus != content.MergeMerged {
		t.Errorf("MergeStatus = %s, want merged", item.GitInfo.MergeStatus)
	}
	if len(item.Collaboration.ChangeLog) != 1 {
		t.Fatalf("ChangeLog length = %d, want 1", len(item.Collaboration.ChangeLog))
	}
	if item.Collaboration.ChangeLog[0].Message != "Created correlation" {
		t.Errorf("ChangeLog[0].Message = %q", item.Collaboration.ChangeLog[0].Message)
	}
}

func TestCreateItem_DuplicateID(t *testing.T) {
	e, _ := testEngine(t)
	createItem(t, e, "corr-1")

	_, err := e.CreateItem(context.Background(), "alice", NewItemParams{
		ID:          "corr-1",
		ContentType: content.TypeCorrelation,
		Name:        "Duplicate",
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateItem_RequiresActor(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.CreateItem(context.Background(), "", NewItemParams{
		ContentType: content.TypePlaybook,
		Name:        "Phishing Triage",
	})
	if !errors.Is(err, ErrActorRequired) {
		t.Errorf("expected ErrActorRequired, got %v", err)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.GetItem(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// Every successful mutation increments the version by exactly one and its
// change-log entry carries the new version.
func TestVersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	steps := []struct {
		name string
		run  func() (*content.ContentItem, error)
	}{
		{"pull request", func() (*content.ContentItem, error) {
			return e.CreatePullRequest(ctx, item.ID, "main", "Tighten query", "alice")
		}},
		{"review", func() (*content.ContentItem, error) {
			return e.ReviewContent(ctx, item.ID, content.ReviewApproved, "LGTM", "bob")
		}},
		{"merge", func() (*content.ContentItem, error) {
			return e.MergeContent(ctx, item.ID, "alice")
		}},
		{"advance phase", func() (*content.ContentItem, error) {
			return e.AdvancePhase(ctx, item.ID, "alice")
		}},
		{"test results", func() (*content.ContentItem, error) {
			return e.RecordTestResults(ctx, item.ID, "alice", 3, 3, 0)
		}},
	}

	prev := item.Version
	for _, step := range steps {
		got, err := step.run()
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if got.Version != prev+1 {
			t.Errorf("%s: version = %d, want %d", step.name, got.Version, prev+1)
		}
		last := got.Collaboration.ChangeLog[len(got.Collaboration.ChangeLog)-1]
		if last.Version != got.Version {
			t.Errorf("%s: change entry version = %d, want %d", step.name, last.Version, got.Version)
		}
		prev = got.Version
	}
}

// PR numbers stay unique across engine restarts over the same store: a
// fresh engine seeds its counter from the highest number already issued.
func TestCreatePullRequest_NumbersSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := NewEngine(store)
	a := createItem(t, first, "corr-a")
	withPR, err := first.CreatePullRequest(ctx, a.ID, "main", "Tighten query", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if *withPR.GitInfo.PullRequest != 1 {
		t.Fatalf("first PR number = %d, want 1", *withPR.GitInfo.PullRequest)
	}

	// A second engine over the same store must not reissue #1 while it
	// is still pending review.
	second := NewEngine(store)
	b := createItem(t, second, "corr-b")
	withPR2, err := second.CreatePullRequest(ctx, b.ID, "main", "New detection", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if *withPR2.GitInfo.PullRequest != 2 {
		t.Errorf("second PR number = %d, want 2", *withPR2.GitInfo.PullRequest)
	}
}

// A branch snapshots the source's change log as plain history: the
// carried entries lose their transition markers so the source's phase
// record is not attributed to the branch.
func TestCreateBranch_DropsCarriedTransitions(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	source := createItem(t, e, "corr-1")

	if _, err := e.AdvancePhase(ctx, source.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	branch, err := e.CreateBranch(ctx, source.ID, "tune", "alice")
	if err != nil {
		t.Fatal(err)
	}
	for i, entry := range branch.Collaboration.ChangeLog {
		if entry.Transition != nil {
			t.Errorf("branch change entry %d carries a transition record", i)
		}
	}

	// The source keeps its own transition record.
	reread, err := e.GetItem(ctx, source.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := reread.Collaboration.ChangeLog[len(reread.Collaboration.ChangeLog)-1]
	if last.Transition == nil {
		t.Error("source lost its transition record")
	}
}

// The change log only ever grows; earlier entries are never rewritten.
func TestChangeLogAppendOnly(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	var logLen int
	var firstEntry content.ChangeEntry

	record := func(got *content.ContentItem) {
		if len(got.Collaboration.ChangeLog) <= logLen {
			t.Errorf("change log did not grow: %d -> %d", logLen, len(got.Collaboration.ChangeLog))
		}
		logLen = len(got.Collaboration.ChangeLog)
		if firstEntry.Version == 0 {
			firstEntry = got.Collaboration.ChangeLog[0]
		} else if got.Collaboration.ChangeLog[0].Message != firstEntry.Message ||
			!got.Collaboration.ChangeLog[0].Timestamp.Equal(firstEntry.Timestamp) {
			t.Error("first change entry was rewritten")
		}
	}

	record(item)

	got, err := e.CreatePullRequest(ctx, item.ID, "main", "desc", "alice")
	if err != nil {
		t.Fatal(err)
	}
	record(got)

	got, err = e.ReviewContent(ctx, item.ID, content.ReviewChangesRequested, "needs work", "bob")
	if err != nil {
		t.Fatal(err)
	}
	record(got)

	got, err = e.AdvancePhase(ctx, item.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	record(got)
}

// Branch, review, merge: the full promotion path.
func TestBranchReviewMergeFlow(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	source := createItem(t, e, "corr-1")

	branch, err := e.CreateBranch(ctx, source.ID, "tune-threshold", "alice")
	if err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
	if branch.ID == source.ID {
		t.Fatal("branch must have a fresh id")
	}
	if branch.GitInfo.Branch != "tune-threshold" {
		t.Errorf("branch name = %q", branch.GitInfo.Branch)
	}
	if branch.GitInfo.MergeStatus != content.MergeUnmerged {
		t.Errorf("branch MergeStatus = %s, want unmerged", branch.GitInfo.MergeStatus)
	}
	if branch.Version != source.Version+1 {
		t.Errorf("branch version = %d, want %d", branch.Version, source.Version+1)
	}

	// The source is untouched by branching.
	reread, err := e.GetItem(ctx, source.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reread.Version != source.Version {
		t.Errorf("source version changed: %d -> %d", source.Version, reread.Version)
	}

	withPR, err := e.CreatePullRequest(ctx, branch.ID, "main", "Raise threshold to 20", "alice")
	if err != nil {
		t.Fatalf("CreatePullRequest() error = %v", err)
	}
	if withPR.GitInfo.PullRequest == nil || *withPR.GitInfo.PullRequest != 1 {
		t.Errorf("PullRequest = %v, want 1", withPR.GitInfo.PullRequest)
	}
	if withPR.GitInfo.ReviewStatus != content.ReviewPending {
		t.Errorf("ReviewStatus = %s, want pending", withPR.GitInfo.ReviewStatus)
	}

	reviewed, err := e.ReviewContent(ctx, branch.ID, content.ReviewApproved, "Looks right", "bob")
	if err != nil {
		t.Fatalf("ReviewContent() error = %v", err)
	}
	if len(reviewed.Collaboration.Reviews) != 1 {
		t.Fatalf("Reviews length = %d, want 1", len(reviewed.Collaboration.Reviews))
	}
	if reviewed.Collaboration.Reviews[0].Reviewer != "bob" {
		t.Errorf("Reviewer = %q, want bob", reviewed.Collaboration.Reviews[0].Reviewer)
	}

	merged, err := e.MergeContent(ctx, branch.ID, "alice")
	if err != nil {
		t.Fatalf("MergeContent() error = %v", err)
	}
	if merged.Status != content.StatusPublished {
		t.Errorf("Status = %s, want published", merged.Status)
	}
	if merged.GitInfo.Branch != MainBranch {
		t.Errorf("Branch = %s, want main", merged.GitInfo.Branch)
	}
	if merged.GitInfo.MergeStatus != content.MergeMerged {
		t.Errorf("MergeStatus = %s, want merged", merged.GitInfo.MergeStatus)
	}

	last := merged.Collaboration.ChangeLog[len(merged.Collaboration.ChangeLog)-1]
	if last.Transition == nil || last.Transition.Kind != content.TransitionMerge {
		t.Error("merge must record an explicit merge transition")
	}
}

// Merging without an approved review fails and leaves the item unchanged.
func TestMergeContent_RequiresApproval(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	for _, status := range []content.ReviewStatus{content.ReviewNone, content.ReviewPending, content.ReviewChangesRequested} {
		stored, err := e.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatal(err)
		}
		stored.GitInfo.ReviewStatus = status
		if err := e.Store().Put(ctx, stored); err != nil {
			t.Fatal(err)
		}

		_, err = e.MergeContent(ctx, item.ID, "alice")
		if !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("status %s: expected ErrPreconditionFailed, got %v", status, err)
		}

		after, err := e.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatal(err)
		}
		if after.Version != stored.Version {
			t.Errorf("status %s: failed merge mutated version: %d -> %d", status, stored.Version, after.Version)
		}
		if len(after.Collaboration.ChangeLog) != len(stored.Collaboration.ChangeLog) {
			t.Errorf("status %s: failed merge appended a change entry", status)
		}
	}
}

func TestReviewContent_RejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	for _, status := range []content.ReviewStatus{content.ReviewNone, content.ReviewPending, "approved_with_nits"} {
		_, err := e.ReviewContent(ctx, item.ID, status, "", "bob")
		var vErr *content.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("status %s: expected validation error, got %v", status, err)
		}
	}
}

func TestReviewContent_LatestWins(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	if _, err := e.ReviewContent(ctx, item.ID, content.ReviewApproved, "", "bob"); err != nil {
		t.Fatal(err)
	}
	got, err := e.ReviewContent(ctx, item.ID, content.ReviewChangesRequested, "regressed", "carol")
	if err != nil {
		t.Fatal(err)
	}

	if got.GitInfo.ReviewStatus != content.ReviewChangesRequested {
		t.Errorf("ReviewStatus = %s, want changes_requested", got.GitInfo.ReviewStatus)
	}
	if len(got.Collaboration.Reviews) != 2 {
		t.Errorf("Reviews length = %d, want 2", len(got.Collaboration.Reviews))
	}
}

func TestForkContent(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	source := createItem(t, e, "corr-1")

	other := createItem(t, e, "corr-2")
	if err := e.AddDependency(ctx, source.ID, other.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	fork, err := e.ForkContent(ctx, source.ID, "carol")
	if err != nil {
		t.Fatalf("ForkContent() error = %v", err)
	}

	if fork.OriginalID != source.ID {
		t.Errorf("OriginalID = %q, want %q", fork.OriginalID, source.ID)
	}
	if fork.Version != 1 {
		t.Errorf("fork version = %d, want 1", fork.Version)
	}
	if fork.Name != source.Name+" (Fork)" {
		t.Errorf("fork name = %q", fork.Name)
	}
	if len(fork.Collaboration.ChangeLog) != 1 {
		t.Errorf("fork change log length = %d, want a fresh history of 1", len(fork.Collaboration.ChangeLog))
	}
	if len(fork.Collaboration.Contributors) != 1 || fork.Collaboration.Contributors[0] != "carol" {
		t.Errorf("fork contributors = %v, want [carol]", fork.Collaboration.Contributors)
	}
	if !content.ContainsID(fork.Dependencies, other.ID) {
		t.Error("fork must snapshot the source's dependencies")
	}

	reread, err := e.GetItem(ctx, source.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !content.ContainsID(reread.Forks, fork.ID) {
		t.Errorf("source forks = %v, missing %q", reread.Forks, fork.ID)
	}

	// Fork dependencies are a snapshot: removing the source's edge later
	// leaves the fork's copy intact.
	if err := e.RemoveDependency(ctx, source.ID, other.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	forkAfter, err := e.GetItem(ctx, fork.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !content.ContainsID(forkAfter.Dependencies, other.ID) {
		t.Error("source edge removal leaked into the fork snapshot")
	}
}

func TestRecordTestResults(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name                  string
		total, passed, failed int
		want                  content.TestStatus
	}{
		{"all passed", 5, 5, 0, content.TestValidated},
		{"one failed", 5, 4, 1, content.TestFailed},
		{"none run", 0, 0, 0, content.TestFailed},
		{"partial run", 5, 3, 0, content.TestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEngine(t)
			item := createItem(t, e, "corr-1")

			got, err := e.RecordTestResults(ctx, item.ID, "alice", tt.total, tt.passed, tt.failed)
			if err != nil {
				t.Fatalf("RecordTestResults() error = %v", err)
			}
			if got.TestStatus != tt.want {
				t.Errorf("TestStatus = %s, want %s", got.TestStatus, tt.want)
			}
			if got.TestResults == nil || got.TestResults.Total != tt.total {
				t.Errorf("TestResults = %+v", got.TestResults)
			}
		})
	}
}

func TestRecordTestResults_RejectsBadCounts(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	for _, counts := range [][3]int{{-1, 0, 0}, {3, -1, 0}, {3, 0, -1}, {3, 3, 1}} {
		_, err := e.RecordTestResults(ctx, item.ID, "alice", counts[0], counts[1], counts[2])
		var vErr *content.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("counts %v: expected validation error, got %v", counts, err)
		}
	}
}

func TestListItems_Filter(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(t)
	createItem(t, e, "corr-1")
	createItem(t, e, "corr-2")
	if _, err := e.CreateItem(ctx, "alice", NewItemParams{
		ID:          "pb-1",
		ContentType: content.TypePlaybook,
		Name:        "Containment Playbook",
	}); err != nil {
		t.Fatal(err)
	}

	correlations, err := e.ListItems(ctx, storage.Filter{ContentType: content.TypeCorrelation})
	if err != nil {
		t.Fatal(err)
	}
	if len(correlations) != 2 {
		t.Errorf("correlation count = %d, want 2", len(correlations))
	}

	all, err := e.ListItems(ctx, storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("total count = %d, want 3", len(all))
	}
}

func TestOperations_CancelledContext(t *testing.T) {
	e, _ := testEngine(t)
	item := createItem(t, e, "corr-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.GetItem(ctx, item.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("GetItem: expected context.Canceled, got %v", err)
	}
	if _, err := e.AdvancePhase(ctx, item.ID, "alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("AdvancePhase: expected context.Canceled, got %v", err)
	}
	if err := e.AddDependency(ctx, item.ID, "other", "alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("AddDependency: expected context.Canceled, got %v", err)
	}
}
