// Package workerpool runs independent tasks with a ceiling on how many are in flight.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work submitted to RunLimited.
type Task[T any] func(ctx context.Context) (T, error)

// Result holds the outcome of the task at the same index.
type Result[T any] struct {
	Value T
	Err   error
}

// RunLimited executes tasks with at most maxConcurrency running at once and
// returns one Result per task in submission order. A failing or panicking
// task only fills its own slot; siblings keep running and the call returns
// after every task has finished.
func RunLimited[T any](ctx context.Context, tasks []Task[T], maxConcurrency int) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	for i, task := range tasks {
		g.Go(func() error {
			results[i] = run(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func run[T any](ctx context.Context, task Task[T]) (result Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			result = Result[T]{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	value, err := task(ctx)
	return Result[T]{Value: value, Err: err}
}

// Values splits results into successful values and the errors of failed slots.
func Values[T any](results []Result[T]) ([]T, []error) {
	var values []T
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		values = append(values, r.Value)
	}
	return values, errs
}
