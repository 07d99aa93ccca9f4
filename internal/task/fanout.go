package task

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the terminal result of one fan-out member: a value or an error,
// never both.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Run executes every spec through fn with at most limit in flight and
// returns outcomes keyed 1:1 by spec key. A member's failure never cancels
// its siblings; it is recorded in its outcome and the group continues. The
// caller cancels the whole group through ctx, in which case specs not yet
// started settle with the context error.
//
// Each fn call runs under the spec's timeout (DefaultTimeout when unset).
func Run[T any](ctx context.Context, specs []Spec, limit int, fn func(ctx context.Context, spec Spec) (T, error)) map[string]Outcome[T] {
	results := make(map[string]Outcome[T], len(specs))
	if len(specs) == 0 {
		return results
	}
	if limit <= 0 {
		limit = len(specs)
	}

	var mu sync.Mutex

	// Plain errgroup rather than WithContext: a failed member must not tear
	// down its siblings.
	var g errgroup.Group
	g.SetLimit(limit)

	for _, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				results[spec.Key] = Outcome[T]{Err: err}
				mu.Unlock()
				return nil
			}

			timeout := spec.Timeout
			if timeout <= 0 {
				timeout = DefaultTimeout
			}
			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			val, err := fn(taskCtx, spec)
			cancel()

			if err != nil {
				zap.L().Warn("fan-out task failed",
					zap.String("key", spec.Key),
					zap.Error(err),
				)
			}

			mu.Lock()
			results[spec.Key] = Outcome[T]{Value: val, Err: err}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// FailedKeys collects the keys of failed outcomes in the order of specs.
func FailedKeys[T any](specs []Spec, results map[string]Outcome[T]) []string {
	var keys []string
	for _, spec := range specs {
		if out, ok := results[spec.Key]; ok && out.Err != nil {
			keys = append(keys, spec.Key)
		}
	}
	return keys
}
