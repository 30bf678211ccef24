package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Job is one unit of work handed to a worker.
type Job struct {
	ctx  context.Context
	fn   func(context.Context)
	err  error
	done chan struct{}
}

func newJob(ctx context.Context, fn func(context.Context)) *Job {
	return &Job{ctx: ctx, fn: fn, done: make(chan struct{})}
}

func (j *Job) finish(err error) {
	j.err = err
	close(j.done)
}

type Worker struct {
	id         int
	workerPool chan chan *Job
	jobChannel chan *Job
	quit       chan struct{}
	logger     *zap.Logger
}

func NewWorker(id int, pool chan chan *Job, quit chan struct{}, logger *zap.Logger) *Worker {
	return &Worker{
		id:         id,
		workerPool: pool,
		jobChannel: make(chan *Job),
		quit:       quit,
		logger:     logger,
	}
}

// Start registers the worker as idle and runs jobs until quit is closed.
func (w *Worker) Start(onExit func()) {
	go func() {
		defer onExit()
		for {
			w.workerPool <- w.jobChannel
			select {
			case job := <-w.jobChannel:
				w.handle(job)
			case <-w.quit:
				return
			}
		}
	}()
}

func (w *Worker) handle(job *Job) {
	if err := job.ctx.Err(); err != nil {
		// caller gave up while the job was queued
		job.finish(err)
		return
	}
	w.logger.Debug("worker picked job", zap.Int("worker", w.id))
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("job panicked", zap.Int("worker", w.id), zap.Any("panic", r))
				err = fmt.Errorf("%w: %v", ErrJobPanic, r)
			}
		}()
		job.fn(job.ctx)
	}()
	job.finish(err)
}
