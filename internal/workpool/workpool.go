// Package workpool runs a bounded fan-out over a slice of inputs: a task
// queue, a fixed number of workers and a results channel, all under one
// wall-clock deadline.
package workpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one task. Err is set when the task returned an
// error, panicked, or never ran because the deadline passed.
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// OK reports whether the task completed without error.
func (o Outcome[R]) OK() bool { return o.Err == nil }

// Pool carries the sizing for a fan-out.
type Pool struct {
	Workers  int
	Deadline time.Duration
	Logger   *zap.Logger
}

// New returns a pool with at least one worker.
func New(workers int, deadline time.Duration, logger *zap.Logger) Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Pool{Workers: workers, Deadline: deadline, Logger: logger}
}

type task[T any] struct {
	index int
	input T
}

// Map runs fn over every input and returns one outcome per input, in input
// order. Task errors and panics are recorded on the outcome and never stop
// the other workers. Inputs still queued when the deadline passes are
// reported with the context error.
func Map[T, R any](ctx context.Context, p Pool, inputs []T, fn func(context.Context, T) (R, error)) []Outcome[R] {
	out := make([]Outcome[R], len(inputs))
	for i := range out {
		out[i].Index = i
	}
	if len(inputs) == 0 {
		return out
	}
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tasks := make(chan task[T])
	results := make(chan Outcome[R], len(inputs))
	workers := min(max(p.Workers, 1), len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for t := range tasks {
				results <- runOne(gctx, logger, t, fn)
			}
			return nil
		})
	}

	done := make([]bool, len(inputs))
	go func() {
		defer close(tasks)
		for i, in := range inputs {
			select {
			case tasks <- task[T]{index: i, input: in}:
			case <-gctx.Done():
				return
			}
		}
	}()

	_ = g.Wait()
	close(results)
	for r := range results {
		out[r.Index] = r
		done[r.Index] = true
	}
	for i := range out {
		if !done[i] {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i].Err = err
		}
	}
	return out
}

// Each is Map for tasks that only report an error.
func Each[T any](ctx context.Context, p Pool, inputs []T, fn func(context.Context, T) error) []error {
	outcomes := Map(ctx, p, inputs, func(ctx context.Context, in T) (struct{}, error) {
		return struct{}{}, fn(ctx, in)
	})
	errs := make([]error, len(outcomes))
	for i, o := range outcomes {
		errs[i] = o.Err
	}
	return errs
}

// Values returns the values of the successful outcomes, in order.
func Values[R any](outcomes []Outcome[R]) []R {
	vals := make([]R, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			vals = append(vals, o.Value)
		}
	}
	return vals
}

func runOne[T, R any](ctx context.Context, logger *zap.Logger, t task[T], fn func(context.Context, T) (R, error)) (res Outcome[R]) {
	res.Index = t.index
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked",
				zap.Int("index", t.index),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res.Err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	v, err := fn(ctx, t.input)
	if err != nil {
		logger.Debug("Task failed", zap.Int("index", t.index), zap.Error(err))
	}
	res.Value, res.Err = v, err
	return res
}
