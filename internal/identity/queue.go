package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/monitoring"
	"github.com/sells-group/trackd/internal/resilience"
)

// QueueConfig sizes the async resolution queue.
type QueueConfig struct {
	Size        int           // buffered jobs; default 1024
	Workers     int           // default 4
	MaxAttempts int           // per job; default 3
	Backoff     time.Duration // initial backoff; default 500ms
}

type queueJob struct {
	id        string
	visitorID string
	in        Identification
}

// Queue runs identify resolutions asynchronously so the track endpoint can
// acknowledge before resolution completes. Delivery is at-least-once per
// accepted job: each job gets MaxAttempts tries with exponential backoff,
// then lands in the dead letter buffer. Enqueue is non-blocking; a full
// queue rejects the job so the caller can resolve synchronously instead.
type Queue struct {
	resolver *Resolver
	jobs     chan queueJob
	retry    resilience.RetryConfig
	dlq      *resilience.DLQ
	wg       sync.WaitGroup
	workers  int

	mu     sync.Mutex
	closed bool
}

func NewQueue(r *Resolver, cfg QueueConfig) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Queue{
		resolver: r,
		jobs:     make(chan queueJob, cfg.Size),
		workers:  cfg.Workers,
		dlq:      resilience.NewDLQ(0),
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.Backoff,
			// Identify replays are retried regardless of error class: the
			// job is cheap and the alternative is a lost identification.
			ShouldRetry: func(error) bool { return true },
			OnRetry:     resilience.RetryLogger("identity", "resolve"),
		},
	}
}

// Start launches the worker pool. Workers exit when the queue is closed and
// drained, or when ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					q.process(ctx, job)
				}
			}
		}()
	}
}

// Enqueue offers a job to the pool without blocking. Reports whether the job
// was accepted; callers fall back to synchronous resolution when it was not.
func (q *Queue) Enqueue(visitorID string, in Identification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- queueJob{id: uuid.New().String(), visitorID: visitorID, in: in}:
		monitoring.ResolutionsQueued.Inc()
		return true
	default:
		return false
	}
}

// Close stops accepting jobs, waits for in-flight work, and logs anything
// left in the dead letter buffer.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	if dead := q.dlq.Drain(); len(dead) > 0 {
		zap.L().Warn("unresolved identifications at shutdown",
			zap.Int("count", len(dead)))
	}
}

func (q *Queue) process(ctx context.Context, job queueJob) {
	err := resilience.Do(ctx, q.retry, func(ctx context.Context) error {
		_, err := q.resolver.Resolve(ctx, job.visitorID, job.in)
		return err
	})
	if err == nil {
		monitoring.ResolutionsProcessed.WithLabelValues("ok").Inc()
		return
	}
	monitoring.ResolutionsProcessed.WithLabelValues("failed").Inc()
	q.dlq.Add(resilience.DLQEntry{
		ID:           job.id,
		Kind:         "identify",
		Payload:      map[string]string{"visitor_id": job.visitorID, "email": job.in.Email},
		Error:        err.Error(),
		ErrorType:    resilience.ClassifyError(err),
		Attempts:     q.retry.MaxAttempts,
		LastFailedAt: time.Now().UTC(),
	})
	zap.L().Error("async resolution exhausted retries",
		zap.String("visitor_id", job.visitorID),
		zap.Error(err))
}
