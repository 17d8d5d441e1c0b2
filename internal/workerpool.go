package internal

import (
	"context"
	"fmt"
	"sync"
)

type job struct {
	ctx context.Context
	h   *ResizeHandler
	c   chan jobResult
}

type jobResult struct {
	result *Result
	err    error
}

func NewPool(logger *StdLog, maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pool{
		logger:  logger,
		wq:      make(chan chan job, maxWorkers),
		workers: maxWorkers,
		qq:      make(chan struct{}),
		wg:      &sync.WaitGroup{},
	}
}

type Pool struct {
	logger  *StdLog
	wq      chan chan job
	qq      chan struct{}
	workers int
	wg      *sync.WaitGroup
}

func (d *Pool) Run() {
	d.logger.Info("Starting worker pool with %d workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		worker := newWorker(d.logger, d.wq, d.qq, d.wg)
		worker.start()
	}
}

// Dispatch hands j to the next idle worker. It gives up when ctx ends
// before a worker frees up.
func (d *Pool) Dispatch(ctx context.Context, j job) error {
	select {
	case jobChannel := <-d.wq:
		select {
		case jobChannel <- j:
			return nil
		case <-ctx.Done():
			d.wq <- jobChannel
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Pool) ShutDown() {
	close(d.qq)
	d.wg.Wait()
}

func newWorker(logger *StdLog, workerQueue chan chan job, quitChan chan struct{}, wg *sync.WaitGroup) *Worker {
	return &Worker{
		logger: logger,
		jq:     make(chan job),
		wq:     workerQueue,
		qc:     quitChan,
		wg:     wg,
	}
}

type Worker struct {
	logger *StdLog
	jq     chan job      // internal worker queue
	wq     chan chan job // pool workers queue
	qc     chan struct{}
	wg     *sync.WaitGroup
}

func (w *Worker) start() {
	go func() {
		w.logger.Debug("Worker spawned")
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("worker panic recover: %v", r)
				w.start()
			}
		}()
		for {
			w.wq <- w.jq
			select {
			case rq := <-w.jq:
				w.logger.Debug("Worker processing request %s", rq.h.Request.OriginalPath)
				w.process(rq)
			case <-w.qc:
				w.logger.Debug("Worker quit channel triggered")
				w.wg.Done()
				return
			}
		}
	}()
}

func (w *Worker) process(rq job) {
	res := jobResult{}
	defer func() {
		if r := recover(); r != nil {
			res = jobResult{err: fmt.Errorf("worker panic: %v", r)}
		}
		rq.c <- res
	}()
	res.result, res.err = rq.h.ProcessRequest(rq.ctx)
}
