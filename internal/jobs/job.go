package job

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Summary counts what one maintenance run did.
type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

// forEach runs fn for every item with at most limit in flight. A failing item
// is logged and counted; it never stops the others.
func forEach[T any](ctx context.Context, name string, limit int, items []T, id func(T) string, fn func(context.Context, T) (outcome, error)) Summary {
	var (
		mu      sync.Mutex
		summary Summary
		g       errgroup.Group
	)
	if limit <= 0 {
		limit = 10
	}
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			result, err := fn(ctx, item)
			if err != nil {
				slog.Error("maintenance item failed", "job", name, "id", id(item), "error", err)
				result = outcomeFailed
			}

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeProcessed:
				summary.Processed++
			case outcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	g.Wait()
	return summary
}
