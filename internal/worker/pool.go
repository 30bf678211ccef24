package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDispatcherBusy is returned when every worker is busy and the queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	ErrPoolClosed     = errors.New("worker pool closed")
	ErrJobPanic       = errors.New("job panicked")
)

// Pool runs jobs on a fixed set of workers behind a bounded queue. Submissions never
// block: a full queue fails fast with ErrDispatcherBusy.
type Pool struct {
	JobQueue   chan *Job
	workerPool chan chan *Job
	quit       chan struct{}
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(size, queueSize int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		JobQueue:   make(chan *Job, queueSize),
		workerPool: make(chan chan *Job, size),
		quit:       make(chan struct{}),
		logger:     logger,
	}
	p.wg.Add(size + 1)
	for i := 0; i < size; i++ {
		NewWorker(i+1, p.workerPool, p.quit, logger).Start(p.wg.Done)
	}
	go p.dispatch()
	return p
}

// dispatch waits for an idle worker before taking the next job, so queued jobs stay
// counted against the queue bound until a worker is free.
func (p *Pool) dispatch() {
	defer p.wg.Done()
	for {
		var workerChan chan *Job
		select {
		case workerChan = <-p.workerPool:
		case <-p.quit:
			p.drain()
			return
		}
		select {
		case job := <-p.JobQueue:
			select {
			case workerChan <- job:
			case <-p.quit:
				job.finish(ErrPoolClosed)
				p.drain()
				return
			}
		case <-p.quit:
			p.drain()
			return
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case job := <-p.JobQueue:
			job.finish(ErrPoolClosed)
		default:
			return
		}
	}
}

// Run executes fn on a worker and waits for it to return. A job whose context is
// cancelled before a worker picks it up is skipped and reports the context error.
func (p *Pool) Run(ctx context.Context, fn func(context.Context)) error {
	job := newJob(ctx, fn)

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.JobQueue <- job:
	default:
		p.mu.RUnlock()
		p.logger.Warn("worker queue full", zap.Int("queued", len(p.JobQueue)))
		return ErrDispatcherBusy
	}
	p.mu.RUnlock()

	<-job.done
	return job.err
}

// Pending reports the number of queued jobs not yet handed to a worker.
func (p *Pool) Pending() int {
	return len(p.JobQueue)
}

// Close stops accepting jobs, fails the queued ones and waits for running jobs.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
	p.wg.Wait()
}
