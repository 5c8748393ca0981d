package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/detectops/contentgov/content"
)

// AddDependency records that itemID requires dependsOnID, writing both
// sides of the edge: dependsOnID joins itemID's dependencies and itemID
// joins dependsOnID's dependents. The edge is rejected with
// ErrCycleDetected when dependsOnID already reaches itemID through the
// dependency graph (a self-edge is the degenerate cycle). Both writes
// succeed or the store is restored to its prior state.
func (e *Engine) AddDependency(ctx context.Context, itemID, dependsOnID, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if actor == "" {
		return ErrActorRequired
	}
	if itemID == dependsOnID {
		return fmt.Errorf("%w: %s", ErrSelfDependency, itemID)
	}

	unlock := e.lockPair(itemID, dependsOnID)
	defer unlock()

	item, err := e.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	dep, err := e.getItem(ctx, dependsOnID)
	if err != nil {
		return err
	}

	if content.ContainsID(item.Dependencies, dependsOnID) {
		return nil
	}

	// Reject the edge if dependsOnID can already reach itemID.
	reaches, err := e.reaches(ctx, dependsOnID, itemID)
	if err != nil {
		return err
	}
	if reaches {
		return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, itemID, dependsOnID)
	}

	priorItem := item.Clone()
	now := e.now()

	item.Dependencies = content.AddID(item.Dependencies, dependsOnID)
	e.appendChange(item, actor,
		fmt.Sprintf("Added dependency on %s", dependsOnID),
		[]string{"dependencies"}, nil)

	dep.Dependents = content.AddID(dep.Dependents, itemID)
	dep.UpdatedAt = now

	if err := e.store.Put(ctx, item); err != nil {
		return fmt.Errorf("store item: %w", err)
	}
	if err := e.store.Put(ctx, dep); err != nil {
		if rbErr := e.store.Put(ctx, priorItem); rbErr != nil {
			e.logger.Error("dependency rollback failed",
				slog.String("id", itemID),
				slog.String("error", rbErr.Error()))
		}
		return fmt.Errorf("store dependency target: %w", err)
	}

	return nil
}

// RemoveDependency removes the edge from both sides.
func (e *Engine) RemoveDependency(ctx context.Context, itemID, dependsOnID, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if actor == "" {
		return ErrActorRequired
	}

	unlock := e.lockPair(itemID, dependsOnID)
	defer unlock()

	item, err := e.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	dep, err := e.getItem(ctx, dependsOnID)
	if err != nil {
		return err
	}

	if !content.ContainsID(item.Dependencies, dependsOnID) {
		return nil
	}

	priorItem := item.Clone()
	now := e.now()

	item.Dependencies = content.RemoveID(item.Dependencies, dependsOnID)
	e.appendChange(item, actor,
		fmt.Sprintf("Removed dependency on %s", dependsOnID),
		[]string{"dependencies"}, nil)

	dep.Dependents = content.RemoveID(dep.Dependents, itemID)
	dep.UpdatedAt = now

	if err := e.store.Put(ctx, item); err != nil {
		return fmt.Errorf("store item: %w", err)
	}
	if err := e.store.Put(ctx, dep); err != nil {
		if rbErr := e.store.Put(ctx, priorItem); rbErr != nil {
			e.logger.Error("dependency rollback failed",
				slog.String("id", itemID),
				slog.String("error", rbErr.Error()))
		}
		return fmt.Errorf("store dependency target: %w", err)
	}

	return nil
}

// reaches reports whether from can reach to by following dependency
// edges. Missing intermediate items are skipped rather than failing the
// walk: a dangling reference must not block an otherwise valid edge.
func (e *Engine) reaches(ctx context.Context, from, to string) (bool, error) {
	if from == to {
		return true, nil
	}

	seen := map[string]bool{from: true}
	frontier := []string{from}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		id := frontier[0]
		frontier = frontier[1:]

		item, err := e.getItem(ctx, id)
		if err != nil {
			continue
		}
		for _, next := range item.Dependencies {
			if next == to {
				return true, nil
			}
			if !seen[next] {
				seen[next] = true
				frontier = append(frontier, next)
			}
		}
	}

	return false, nil
}
