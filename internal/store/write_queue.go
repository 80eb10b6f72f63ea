package store

import (
	"context"
	"sync"
)

type writeJob struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// WriteQueue serializes every mutation of one spreadsheet through a single
// goroutine, so an append or delete can never interleave with another write
// and shift row numbers underneath it. Reads go straight to the wrapped
// store.
type WriteQueue struct {
	inner ExternalStore
	jobs  chan writeJob
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func NewWriteQueue(inner ExternalStore, buffer int) *WriteQueue {
	q := &WriteQueue{
		inner: inner,
		jobs:  make(chan writeJob, buffer),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *WriteQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			job.result <- job.fn(job.ctx)
		case <-q.done:
			return
		}
	}
}

// Close stops the writer. Jobs already accepted but not yet started fail
// with ErrQueueClosed.
func (q *WriteQueue) Close() {
	q.once.Do(func() {
		close(q.done)
		q.wg.Wait()
		for {
			select {
			case job := <-q.jobs:
				job.result <- ErrQueueClosed
			default:
				return
			}
		}
	})
}

func (q *WriteQueue) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	job := writeJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		q.wg.Wait()
		select {
		case err := <-job.result:
			return err
		default:
			return ErrQueueClosed
		}
	}
}

func (q *WriteQueue) FetchRows(ctx context.Context, tab string) ([][]string, error) {
	return q.inner.FetchRows(ctx, tab)
}

func (q *WriteQueue) UpdateCell(ctx context.Context, tab string, row, col int, value string) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.inner.UpdateCell(ctx, tab, row, col, value)
	})
}

func (q *WriteQueue) AppendRow(ctx context.Context, tab string, values []string) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.inner.AppendRow(ctx, tab, values)
	})
}

func (q *WriteQueue) DeleteRow(ctx context.Context, tab string, row int) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.inner.DeleteRow(ctx, tab, row)
	})
}

func (q *WriteQueue) EnsureTab(ctx context.Context, tab string, header []string) error {
	return q.submit(ctx, func(ctx context.Context) error {
		return q.inner.EnsureTab(ctx, tab, header)
	})
}
