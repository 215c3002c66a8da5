package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const jobTimeout = 2 * time.Minute

// ErrQueueFull is returned by Submit when the job buffer is full.
var ErrQueueFull = errors.New("job queue full")

var (
	jobTracer          = otel.Tracer("splitpay/scheduler")
	jobMeter           = otel.Meter("splitpay/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Jobs executed by kind and outcome"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

// WorkerPool runs submitted jobs on a fixed number of goroutines. All
// workers share one limiter: the processor rate-limits the application,
// not each connection.
type WorkerPool struct {
	workerCount int
	limiter     *rate.Limiter
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool that starts at most one job per jobDelay
// across all workers. A zero jobDelay disables pacing.
func NewWorkerPool(workerCount int, jobDelay time.Duration, queueSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	limit := rate.Inf
	if jobDelay > 0 {
		limit = rate.Every(jobDelay)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		limiter:     rate.NewLimiter(limit, 1),
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (wp *WorkerPool) Start() {
	slog.Info("starting worker pool", "workers", wp.workerCount, "rate", float64(wp.limiter.Limit()))

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			// Cancelled while paced; the remaining queue is abandoned.
			return
		}
		wp.run(id, job)
	}
}

func (wp *WorkerPool) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(wp.ctx, jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job."+job.Kind(),
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.user_id", job.UserID()),
		),
	)
	defer span.End()

	start := time.Now()
	err := job.Execute(ctx)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "job failed", "kind", job.Kind(), "user_id", job.UserID(), "worker", workerID, "error", err)
	} else {
		slog.DebugContext(ctx, "job completed", "kind", job.Kind(), "user_id", job.UserID(), "duration", elapsed)
	}

	attrs := metric.WithAttributes(attribute.String("kind", job.Kind()), attribute.String("status", outcome))
	jobTotal.Add(ctx, 1, attrs)
	jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// Submit queues a job without blocking.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return context.Canceled
	}
	select {
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(wp.ctx, 1, metric.WithAttributes(attribute.String("kind", job.Kind())))
		return ErrQueueFull
	}
}

// SubmitBatch queues jobs and returns how many were accepted. A full queue
// stops the batch; the rest are picked up on the next run.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	for i, job := range jobs {
		if err := wp.Submit(job); err != nil {
			slog.Warn("job batch truncated", "submitted", i, "total", len(jobs), "error", err)
			return i
		}
	}
	slog.Info("submitted jobs to worker pool", "total", len(jobs))
	return len(jobs)
}

// Shutdown closes the queue and waits up to timeout for the workers to
// drain it, then cancels whatever is still running.
func (wp *WorkerPool) Shutdown(timeout time.Duration) {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobs)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker pool drained")
	case <-time.After(timeout):
		slog.Warn("worker pool shutdown timed out, cancelling running jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()
}
