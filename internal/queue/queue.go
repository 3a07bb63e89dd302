package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// Queue is a Redis-list backed job queue. Producers LPUSH serialized jobs
// onto the waiting list; the Runner moves them to an active list while a
// worker holds them.
type Queue struct {
	rdb  *redis.Client
	name string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

// Enqueue adds a backfill job to the waiting list and returns its id.
func (q *Queue) Enqueue(ctx context.Context, job models.BackfillJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.EnqueuedAt = time.Now().UTC()

	b, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.waitingKey(), b).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	if err := q.rdb.HSet(ctx, q.jobKey(job.ID), "state", "waiting", "progress", 0).Err(); err != nil {
		return "", fmt.Errorf("init job state: %w", err)
	}

	fmt.Printf("[QUEUE] Enqueued job %s (%s on %s)\n", job.ID, job.Token, job.Network)
	return job.ID, nil
}

// Progress returns the last reported progress percentage and state for a job.
func (q *Queue) Progress(ctx context.Context, jobID string) (int, string, error) {
	vals, err := q.rdb.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return 0, "", err
	}
	if len(vals) == 0 {
		return 0, "", fmt.Errorf("unknown job: %s", jobID)
	}
	pct := 0
	if raw := vals["progress"]; raw != "" {
		pct, err = strconv.Atoi(raw)
		if err != nil {
			return 0, "", fmt.Errorf("parse progress for job %s: %w", jobID, err)
		}
	}
	return pct, vals["state"], nil
}

// --- keys ---

func (q *Queue) waitingKey() string { return fmt.Sprintf("queue:%s:waiting", q.name) }
func (q *Queue) activeKey() string  { return fmt.Sprintf("queue:%s:active", q.name) }

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("queue:%s:job:%s", q.name, id)
}

func (q *Queue) lockKey(id string) string {
	return fmt.Sprintf("queue:%s:lock:%s", q.name, id)
}
