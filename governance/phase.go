package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/detectops/contentgov/content"
)

// AdvancePhase moves the item one step forward through the DDLC
// sequence. Advancing from the terminal monitoring phase is an
// idempotent no-op that still succeeds and returns the item unchanged.
// Entering testing sets testStatus to in_progress; entering deployed
// sets it to validated.
func (e *Engine) AdvancePhase(ctx context.Context, itemID, actor string) (*content.ContentItem, error) {
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

	current := item.DDLCPhase
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: item %s has unknown phase %q", ErrInvalidTransition, itemID, current)
	}
	if current.IsTerminal() {
		return item, nil
	}

	next := current.Next()
	item.DDLCPhase = next
	switch next {
	case content.PhaseTesting:
		item.TestStatus = content.TestInProgress
	case content.PhaseDeployed:
		item.TestStatus = content.TestValidated
	}

	changes := []string{"ddlc_phase"}
	if next == content.PhaseTesting || next == content.PhaseDeployed {
		changes = append(changes, "test_status")
	}

	e.appendChange(item, actor,
		fmt.Sprintf("Advanced to %s phase", next),
		changes,
		&content.PhaseTransition{
			Kind:      content.TransitionPhase,
			FromPhase: string(current),
			ToPhase:   string(next),
		})

	if err := e.store.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("store item: %w", err)
	}

	e.logger.Info("phase advanced",
		slog.String("id", itemID),
		slog.String("from", string(current)),
		slog.String("to", string(next)))

	return item, nil
}
