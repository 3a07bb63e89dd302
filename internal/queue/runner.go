package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// Handler processes one job, reporting progress (0-100) through the
// callback as it goes. A non-nil return marks the job failed.
type Handler func(ctx context.Context, job models.BackfillJob, progress func(int)) error

type RunnerConfig struct {
	LockTTL         time.Duration // how long a claimed job stays locked without a heartbeat
	StalledInterval time.Duration // how often the reaper scans for stalled jobs
	MaxStalledCount int           // stalls before a job is abandoned
	OnCompleted     func(job models.BackfillJob)
	OnFailed        func(job models.BackfillJob, err error)
}

// Runner drains the queue: it claims jobs from waiting to active, holds a
// heartbeat lock while the handler runs, and re-queues jobs whose worker
// went silent. A job that stalls MaxStalledCount times is abandoned.
type Runner struct {
	queue   *Queue
	handler Handler
	cfg     RunnerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewRunner(q *Queue, handler Handler, cfg RunnerConfig) *Runner {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 600 * time.Second
	}
	if cfg.StalledInterval <= 0 {
		cfg.StalledInterval = 60 * time.Second
	}
	if cfg.MaxStalledCount <= 0 {
		cfg.MaxStalledCount = 10
	}
	return &Runner{queue: q, handler: handler, cfg: cfg}
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		fmt.Println("[QUEUE] Runner already running")
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(2)
	go r.drainLoop(ctx)
	go r.reaperLoop(ctx)

	fmt.Printf("[QUEUE] Runner started (lock %s, stalled check every %s)\n",
		r.cfg.LockTTL, r.cfg.StalledInterval)
}

func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	fmt.Println("[QUEUE] Runner stopped")
}

func (r *Runner) drainLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		payload, err := r.queue.rdb.BLMove(ctx, r.queue.waitingKey(), r.queue.activeKey(),
			"RIGHT", "LEFT", 5*time.Second).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			fmt.Printf("[QUEUE] claim failed: %v\n", err)
			time.Sleep(time.Second)
			continue
		}

		r.process(ctx, payload)
	}
}

func (r *Runner) process(ctx context.Context, payload string) {
	var job models.BackfillJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		fmt.Printf("[QUEUE] dropping malformed payload: %v\n", err)
		r.queue.rdb.LRem(ctx, r.queue.activeKey(), 1, payload)
		return
	}

	r.queue.rdb.HSet(ctx, r.queue.jobKey(job.ID), "state", "active")
	r.queue.rdb.Set(ctx, r.queue.lockKey(job.ID), "1", r.cfg.LockTTL)

	// Heartbeat keeps the lock alive while the handler runs; if this process
	// dies the lock expires and the reaper re-queues the job.
	hbDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-hbDone:
				return
			case <-ticker.C:
				r.queue.rdb.Expire(ctx, r.queue.lockKey(job.ID), r.cfg.LockTTL)
			}
		}
	}()

	progress := func(pct int) {
		r.queue.rdb.HSet(ctx, r.queue.jobKey(job.ID), "progress", pct)
		fmt.Printf("[QUEUE] Job %s progress: %d%%\n", job.ID, pct)
	}

	err := r.handler(ctx, job, progress)
	close(hbDone)

	if err != nil {
		fmt.Printf("[QUEUE] Job %s failed: %v\n", job.ID, err)
		r.queue.rdb.HSet(ctx, r.queue.jobKey(job.ID), "state", "failed", "error", err.Error())
		if r.cfg.OnFailed != nil {
			r.cfg.OnFailed(job, err)
		}
	} else {
		fmt.Printf("[QUEUE] Job %s completed\n", job.ID)
		r.queue.rdb.HSet(ctx, r.queue.jobKey(job.ID), "state", "completed", "progress", 100)
		if r.cfg.OnCompleted != nil {
			r.cfg.OnCompleted(job)
		}
	}

	r.queue.rdb.LRem(ctx, r.queue.activeKey(), 1, payload)
	r.queue.rdb.Del(ctx, r.queue.lockKey(job.ID))
}

// reaperLoop re-queues active jobs whose lock expired (worker died or went
// silent past the lock TTL). Jobs that keep stalling are abandoned.
func (r *Runner) reaperLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.StalledInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapStalled(ctx)
		}
	}
}

func (r *Runner) reapStalled(ctx context.Context) {
	payloads, err := r.queue.rdb.LRange(ctx, r.queue.activeKey(), 0, -1).Result()
	if err != nil {
		fmt.Printf("[QUEUE] stalled scan failed: %v\n", err)
		return
	}

	for _, payload := range payloads {
		var job models.BackfillJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			r.queue.rdb.LRem(ctx, r.queue.activeKey(), 1, payload)
			continue
		}

		locked, err := r.queue.rdb.Exists(ctx, r.queue.lockKey(job.ID)).Result()
		if err != nil || locked > 0 {
			continue
		}

		stalls, _ := r.queue.rdb.HIncrBy(ctx, r.queue.jobKey(job.ID), "stalls", 1).Result()
		if stalls > int64(r.cfg.MaxStalledCount) {
			fmt.Printf("[QUEUE] Job %s abandoned after %d stalls\n", job.ID, stalls)
			r.queue.rdb.HSet(ctx, r.queue.jobKey(job.ID), "state", "abandoned")
			r.queue.rdb.LRem(ctx, r.queue.activeKey(), 1, payload)
			continue
		}

		fmt.Printf("[QUEUE] Re-queueing stalled job %s (stall %d)\n", job.ID, stalls)
		r.queue.rdb.HSet(ctx, r.queue.jobKey(job.ID), "state", "waiting")
		r.queue.rdb.LRem(ctx, r.queue.activeKey(), 1, payload)
		r.queue.rdb.LPush(ctx, r.queue.waitingKey(), payload)
	}
}
