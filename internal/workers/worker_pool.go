package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/utils"
)

// WorkerPool manages a pool of workers for job execution. The sync
// engine uses it to bound how many remote payload fetches run at once.
type WorkerPool struct {
	ctx        context.Context
	cancel     context.CancelFunc
	numWorkers int
	workerChan chan func()
	wg         sync.WaitGroup
	logger     *utils.LogsManager
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(ctx context.Context, numWorkers int, logger *utils.LogsManager) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		ctx:        poolCtx,
		cancel:     cancel,
		numWorkers: numWorkers,
		workerChan: make(chan func(), numWorkers),
		logger:     logger,
	}
}

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.logger.Info(fmt.Sprintf("Starting worker pool with %d workers", wp.numWorkers), "workers")

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		workerID := i

		go func(id int) {
			defer wp.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error(fmt.Sprintf("Worker %d panic recovered: %v", id, r), "workers")
				}
			}()

			for {
				select {
				case task := <-wp.workerChan:
					task()

				case <-wp.ctx.Done():
					wp.logger.Debug(fmt.Sprintf("Worker %d stopping (context done)", id), "workers")
					return
				}
			}
		}(workerID)
	}
}

// Submit submits a task to the worker pool
func (wp *WorkerPool) Submit(task func()) error {
	select {
	case wp.workerChan <- task:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped", "workers")
}

// GetActiveWorkers returns the number of active workers
func (wp *WorkerPool) GetActiveWorkers() int {
	return wp.numWorkers
}
