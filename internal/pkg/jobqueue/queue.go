package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobDelayedKey    = "job_delayed" // sorted set scored by due time in unix ms
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire 24 hours after they become due

	promoteBatchSize = 100
)

// Handler processes one job. Returning an error wrapped with Permanent fails the job for good.
type Handler func(ctx context.Context, job *Job) error

// EventHandler adapts a handler keyed on the event id carried by EventJobPayload.
func EventHandler(fn func(ctx context.Context, eventID string) error) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := EventJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(fmt.Errorf("job %s: %w", job.ID, err))
		}
		return fn(ctx, payload.EventID)
	}
}

// Option configures a Queue
type Option func(*Queue)

// WithRetryable sets the predicate deciding whether a failed job is tried again.
func WithRetryable(fn func(error) bool) Option {
	return func(q *Queue) { q.retryable = fn }
}

// WithMetrics records job outcomes
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	cfg        *Config
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler
	retryable  func(error) bool
	metrics    *Metrics
}

// NewQueue creates a new job queue on the given Redis client
func NewQueue(client *redis.Client, cfg *Config, opts ...Option) *Queue {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	q := &Queue{
		client:     client,
		cfg:        cfg,
		workers:    cfg.Workers,
		workerPool: make(chan struct{}, cfg.Workers),
		stopCh:     make(chan struct{}),
		handlers:   make(map[JobType]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Handle registers the handler for a job type
func (q *Queue) Handle(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	// Initialize worker pool
	q.workerPool = make(chan struct{}, q.workers)
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(2)
	go q.promoter(q.cfg.PromoteInterval)
	go q.stuckSweeper(q.cfg.StuckMaxAge, q.cfg.StuckInterval)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// ScheduleSend enqueues the send task of an event
func (q *Queue) ScheduleSend(ctx context.Context, eventID string, delay time.Duration) error {
	_, err := q.Enqueue(ctx, JobTypeSendSignature, EventJobPayload{EventID: eventID}.ToMap(), delay)
	return err
}

// ScheduleCheckStatus enqueues a status check of an event
func (q *Queue) ScheduleCheckStatus(ctx context.Context, eventID string, delay time.Duration) error {
	_, err := q.Enqueue(ctx, JobTypeCheckSignatureStatus, EventJobPayload{EventID: eventID}.ToMap(), delay)
	return err
}

// ScheduleUpload enqueues the signed document upload of an event
func (q *Queue) ScheduleUpload(ctx context.Context, eventID string, delay time.Duration) error {
	_, err := q.Enqueue(ctx, JobTypeUploadSignedDocuments, EventJobPayload{EventID: eventID}.ToMap(), delay)
	return err
}

// Enqueue adds a new job. A positive delay parks it in the delayed set until it is due.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}, delay time.Duration) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 0,
		MaxRetries: q.cfg.MaxRetries,
	}
	if delay > 0 {
		job.MarkAsScheduled(now.Add(delay))
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID

	pipe := q.client.TxPipeline()
	if delay > 0 {
		pipe.Set(ctx, jobKey, jobData, JobTTL+delay)
		pipe.ZAdd(ctx, JobDelayedKey, redis.Z{Score: dueScore(*job.RunAt), Member: job.ID})
	} else {
		pipe.Set(ctx, jobKey, jobData, JobTTL)
		pipe.LPush(ctx, JobQueueKey, job.ID)
	}
	pipe.HIncrBy(ctx, JobStatsKey, string(job.Status), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if delay > 0 {
		log.Infof("[JobQueue] Scheduled job %s (Type: %s) in %s", job.ID, job.Type, delay)
	} else {
		log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	}
	return job, nil
}

func dueScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// promoter moves due jobs from the delayed set into the queue
func (q *Queue) promoter(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx, time.Now()); err != nil {
				log.Errorf("[JobQueue] Promoting delayed jobs failed: %v", err)
			}
		}
	}
}

// PromoteDue moves every delayed job due at or before now into the queue. The ZREM claim makes
// sure only one instance pushes a given job.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	promoted := 0
	for {
		ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixMilli(), 10),
			Count: promoteBatchSize,
		}).Result()
		if err != nil {
			return promoted, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
			if err != nil {
				return promoted, err
			}
			if removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
				q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: dueScore(now), Member: id})
				return promoted, err
			}
			promoted++
		}

		if len(ids) < promoteBatchSize {
			break
		}
	}
	q.metrics.promoted(promoted)
	return promoted, nil
}

// stuckSweeper periodically requeues jobs stuck in processing for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			if _, err := q.RecoverStuck(ctx, maxAge, time.Now()); err != nil {
				log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
			}
		}
	}
}

// RecoverStuck moves jobs that started processing more than maxAge ago back to the queue.
func (q *Queue) RecoverStuck(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Sweeper could not load job %s: %v", id, err)
			}
			q.removeFromProcessing(ctx, id)
			continue
		}
		if job.Status != JobStatusProcessing {
			q.removeFromProcessing(ctx, id)
			continue
		}

		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if started.IsZero() {
			started = job.CreatedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(started))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)
		if err := q.requeueJob(ctx, job); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			// Acquire worker slot
			<-q.workerPool

			job, err := q.dequeueJob(ctx)
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
					time.Sleep(time.Second)
				}
				q.workerPool <- struct{}{}
				continue
			}

			if job != nil {
				log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
				q.processJob(ctx, job)
			}

			// Release worker slot
			q.workerPool <- struct{}{}
		}
	}
}

// dequeueJob gets the next job from the queue
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	// Move job from pending queue to processing queue atomically
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		// Job data missing or invalid, drop it from the processing queue
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("job data not usable for ID %s: %w", jobID, err)
	}
	return job, nil
}

// processJob runs the registered handler and records the outcome
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	err := q.runHandler(jobCtx, job)
	cancel()

	q.removeFromProcessing(ctx, job.ID)

	if err == nil {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.metrics.job(job.Type, "completed")
		q.removeCompletedJob(ctx, job.ID)
		return
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	if q.isPermanent(err) {
		job.MarkAsPermanentlyFailed(err.Error())
	} else {
		job.MarkAsFailed(err.Error())
	}

	if !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
		q.updateJob(ctx, job)
		q.updateJobStats(ctx, JobStatusFailed, 1)
		q.metrics.job(job.Type, "failed")
		return
	}

	delay := job.RetryDelay(q.cfg.RetryBackoff)
	runAt := time.Now().Add(delay)
	log.Infof("[JobQueue] Retrying job %s in %s (Attempt %d/%d)", job.ID, delay, job.RetryCount, job.MaxRetries)
	job.MarkAsRetrying()
	job.RunAt = &runAt
	q.updateJob(ctx, job)
	if err := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: dueScore(runAt), Member: job.ID}).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to schedule retry of job %s: %v", job.ID, err)
	}
	q.updateJobStats(ctx, JobStatusRetrying, 1)
	q.metrics.job(job.Type, "retried")
}

func (q *Queue) runHandler(ctx context.Context, job *Job) error {
	q.handlersMu.RLock()
	h, ok := q.handlers[job.Type]
	q.handlersMu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("unknown job type: %s", job.Type))
	}
	return h(ctx, job)
}

func (q *Queue) isPermanent(err error) bool {
	if IsPermanent(err) {
		return true
	}
	return q.retryable != nil && !q.retryable(err)
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	ttl := JobTTL
	if job.RunAt != nil {
		if d := time.Until(*job.RunAt); d > 0 {
			ttl += d
		}
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, ttl).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// requeueJob moves a job from processing back to the pending queue
func (q *Queue) requeueJob(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing: %v", job.ID, err)
	}
	if err := q.client.RPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
		return err
	}
	return nil
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s from Redis: %v", jobID, err)
	} else {
		log.Debugf("[JobQueue] Removed completed job %s from Redis", jobID)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if countInt, err := strconv.ParseInt(count, 10, 64); err == nil {
			result[JobStatus(status)] = countInt
		}
	}

	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// GetDelayedSize returns the number of scheduled jobs not yet due
func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}
