package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sjperalta/schoolfees-api/internal/metrics"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker runs fire-and-forget jobs and interval schedules
type Worker struct {
	ctx           context.Context // handed to jobs, cancelled once they drained
	cancel        context.CancelFunc
	stop          chan struct{} // closed on shutdown to end schedules
	closed        atomic.Bool
	wg            sync.WaitGroup
	asyncSem      chan struct{}
	maxConcurrent int
	stats         WorkerStats
	statsMu       sync.RWMutex
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int   `json:"active_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// NewWorker creates a worker allowing up to 2*concurrency async jobs in flight
func NewWorker(concurrency int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	limit := concurrency * 2
	if limit < 4 {
		limit = 4
	}

	return &Worker{
		ctx:           ctx,
		cancel:        cancel,
		stop:          make(chan struct{}),
		asyncSem:      make(chan struct{}, limit),
		maxConcurrent: limit,
	}
}

// EnqueueAsync runs a job in its own goroutine, bounded by the semaphore
func (w *Worker) EnqueueAsync(name string, job Job) {
	if w.closed.Load() {
		logger.Warn("[Worker] Dropping job after shutdown", "job", name)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.asyncSem <- struct{}{}
		defer func() { <-w.asyncSem }()

		w.run(name, job)
	}()
}

// ScheduleEvery runs a job at fixed intervals, first run after one interval
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, job, false)
}

// ScheduleEveryImmediate runs a job once at startup, then at fixed intervals
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, job, true)
}

func (w *Worker) schedule(name string, interval time.Duration, job Job, immediate bool) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.run(name, job)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.run(name, job)
			}
		}
	}()
}

// run executes one job with panic recovery, stats and metrics
func (w *Worker) run(name string, job Job) {
	w.trackJobStart()
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job(w.ctx)
	}()

	elapsed := time.Since(start)
	metrics.ObserveJob(name, err, elapsed)
	w.trackJobEnd(err != nil)

	if err != nil {
		logger.Error("[Worker] Job failed", "job", name, "error", err, "elapsed", elapsed)
		return
	}
	logger.Debug("[Worker] Job completed", "job", name, "elapsed", elapsed)
}

// Shutdown stops schedules, waits for in-flight jobs, then cancels their context
func (w *Worker) Shutdown() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	close(w.stop)
	w.wg.Wait()
	w.cancel()
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.MaxConcurrent = w.maxConcurrent
	return stats
}

func (w *Worker) trackJobStart() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
}

// trackJobEnd counts finished jobs; FailedJobs is a subset of CompletedJobs
func (w *Worker) trackJobEnd(failed bool) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
	if failed {
		w.stats.FailedJobs++
	}
}
