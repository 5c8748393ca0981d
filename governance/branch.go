package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/detectops/contentgov/content"
)

// CreateBranch creates a new item that is a full snapshot of the source
// under a fresh id and the given branch name. The source is left
// untouched: a branch here is a disjoint copy, not a ref into shared
// history.
func (e *Engine) CreateBranch(ctx context.Context, sourceID, branchName, actor string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if branchName == "" {
		return nil, ErrBranchNameRequired
	}
	if actor == "" {
		return nil, ErrActorRequired
	}

	unlock := e.lockItem(sourceID)
	defer unlock()

	source, err := e.getItem(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	branch := source.Clone()
	branch.ID = fmt.Sprintf("%s_%s_%d", source.ID, branchName, now.UnixNano())
	// Carried change-log entries describe the source's lifecycle; drop
	// their transition markers so analytics does not attribute the
	// source's phase history to the branch.
	for i := range branch.Collaboration.ChangeLog {
		branch.Collaboration.ChangeLog[i].Transition = nil
	}
	branch.Status = content.StatusDraft
	branch.GitInfo = content.GitInfo{
		Branch:       branchName,
		Commit:       newCommitToken(),
		Author:       actor,
		Message:      fmt.Sprintf("Created branch %s", branchName),
		ReviewStatus: content.ReviewNone,
		MergeStatus:  content.MergeUnmerged,
	}
	branch.Version = source.Version + 1
	branch.Collaboration.AddContributor(actor)
	branch.Collaboration.LastModifiedBy = actor
	branch.Collaboration.ChangeLog = append(branch.Collaboration.ChangeLog, content.ChangeEntry{
		Version:   branch.Version,
		Author:    actor,
		Timestamp: now,
		Message:   fmt.Sprintf("Created branch %s", branchName),
		Changes:   []string{"branch"},
	})
	branch.CreatedAt = now
	branch.UpdatedAt = now

	if err := e.store.Create(ctx, branch); err != nil {
		return nil, fmt.Errorf("store branch: %w", err)
	}

	e.logger.Info("branch created",
		slog.String("source_id", sourceID),
		slog.String("branch", branchName),
		slog.String("id", branch.ID))

	return branch, nil
}

// CreatePullRequest opens a pull request on the item: a fresh PR number
// is allocated, review status becomes pending, and the description is
// recorded as the working commit message. The version is bumped, as
// with every change-log entry.
func (e *Engine) CreatePullRequest(ctx context.Context, itemID, targetBranch, description, actor string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrActorRequired
	}

	unlock := e.lockItem(itemID)
	defer unlock()

	item, err := e.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	pr, err := e.allocatePR(ctx)
	if err != nil {
		return nil, err
	}
	item.GitInfo.PullRequest = &pr
	item.GitInfo.ReviewStatus = content.ReviewPending
	item.GitInfo.Message = description

	e.appendChange(item, actor,
		fmt.Sprintf("Opened pull request #%d targeting %s", pr, targetBranch),
		[]string{"pull_request", "review_status"}, nil)

	if err := e.store.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("store item: %w", err)
	}

	e.logger.Info("pull request opened",
		slog.String("id", itemID),
		slog.Int("pull_request", pr),
		slog.String("target", targetBranch))

	return item, nil
}

// ReviewContent records a review on the item. Reviews accumulate; the
// latest one determines gitInfo.reviewStatus.
func (e *Engine) ReviewContent(ctx context.Context, itemID string, status content.ReviewStatus, comment, actor string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrActorRequired
	}
	if status != content.ReviewApproved && status != content.ReviewChangesRequested {
		return nil, &content.ValidationError{Field: "status", Message: fmt.Sprintf("review status must be %q or %q", content.ReviewApproved, content.ReviewChangesRequested)}
	}

	unlock := e.lockItem(itemID)
	defer unlock()

	item, err := e.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	item.GitInfo.ReviewStatus = status
	item.Collaboration.Reviews = append(item.Collaboration.Reviews, content.Review{
		Reviewer:  actor,
		Status:    status,
		Comment:   comment,
		Timestamp: e.now(),
	})

	e.appendChange(item, actor,
		fmt.Sprintf("Review submitted: %s", status),
		[]string{"review_status", "reviews"}, nil)

	if err := e.store.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("store item: %w", err)
	}

	return item, nil
}

// MergeContent promotes a reviewed item to published on the main branch.
// The item must be approved at call time; otherwise the operation fails
// with ErrPreconditionFailed and performs no mutation.
func (e *Engine) MergeContent(ctx context.Context, itemID, actor string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrActorRequired
	}

	unlock := e.lockItem(itemID)
	defer unlock()

	item, err := e.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if item.GitInfo.ReviewStatus != content.ReviewApproved {
		return nil, fmt.Errorf("%w: merge requires approved review, have %s",
			ErrPreconditionFailed, item.GitInfo.ReviewStatus)
	}

	fromBranch := item.GitInfo.Branch
	item.GitInfo.MergeStatus = content.MergeMerged
	item.GitInfo.Branch = MainBranch
	item.Status = content.StatusPublished

	e.appendChange(item, actor,
		fmt.Sprintf("Merged %s into %s", fromBranch, MainBranch),
		[]string{"merge_status", "branch", "status"},
		&content.PhaseTransition{Kind: content.TransitionMerge, FromPhase: fromBranch, ToPhase: MainBranch})

	if err := e.store.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("store item: %w", err)
	}

	e.logger.Info("content merged",
		slog.String("id", itemID),
		slog.String("from_branch", fromBranch))

	return item, nil
}

// ForkContent creates an independent copy of the source with a fresh
// collaboration history, recording the fork on both sides: the new item
// points back via originalId and the source's forks set gains the new
// id. Dependencies are snapshotted, not shared. Both writes succeed or
// the store is restored to its prior state.
func (e *Engine) ForkContent(ctx context.Context, sourceID, actor string) (*content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrActorRequired
	}

	now := e.now()
	forkID := fmt.Sprintf("%s_fork_%d", sourceID, now.UnixNano())

	unlock := e.lockPair(sourceID, forkID)
	defer unlock()

	source, err := e.getItem(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	prior := source.Clone()

	fork := source.Clone()
	fork.ID = forkID
	fork.Name = source.Name + " (Fork)"
	fork.Status = content.StatusDraft
	fork.Version = 1
	fork.GitInfo = content.GitInfo{
		Branch:       "fork-main",
		Commit:       newCommitToken(),
		Author:       actor,
		Message:      "Forked content",
		ReviewStatus: content.ReviewNone,
		MergeStatus:  content.MergeUnmerged,
	}
	fork.Collaboration = content.Collaboration{
		Contributors:   []string{actor},
		LastModifiedBy: actor,
		ChangeLog: []content.ChangeEntry{{
			Version:   1,
			Author:    actor,
			Timestamp: now,
			Message:   fmt.Sprintf("Forked from %s", sourceID),
		}},
		Reviews: []content.Review{},
	}
	fork.OriginalID = sourceID
	fork.Forks = []string{}
	fork.Dependents = []string{}
	// Dependencies stay as the snapshot copied by Clone.
	fork.CreatedAt = now
	fork.UpdatedAt = now

	source.Forks = content.AddID(source.Forks, fork.ID)
	source.UpdatedAt = now

	if err := e.store.Put(ctx, source); err != nil {
		return nil, fmt.Errorf("store source: %w", err)
	}
	if err := e.store.Create(ctx, fork); err != nil {
		// Roll back the source's forks entry so the store keeps its
		// prior consistent state.
		if rbErr := e.store.Put(ctx, prior); rbErr != nil {
			e.logger.Error("fork rollback failed",
				slog.String("source_id", sourceID),
				slog.String("error", rbErr.Error()))
		}
		return nil, fmt.Errorf("store fork: %w", err)
	}

	e.logger.Info("content forked",
		slog.String("source_id", sourceID),
		slog.String("fork_id", fork.ID))

	return fork, nil
}
