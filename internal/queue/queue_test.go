package queue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/kjannette/oracle-backend/internal/queue"
	"github.com/kjannette/oracle-backend/internal/testutil"
)

func uniqueQueueName(t *testing.T) string {
	return "test-" + t.Name() + "-" + time.Now().Format("150405.000000000")
}

func TestEnqueueAndProcess(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	q := queue.New(rdb, uniqueQueueName(t))
	ctx := context.Background()

	var handled atomic.Int32
	var gotJob atomic.Value
	var completed atomic.Bool

	runner := queue.NewRunner(q, func(ctx context.Context, job models.BackfillJob, progress func(int)) error {
		handled.Add(1)
		gotJob.Store(job)
		progress(50)
		return nil
	}, queue.RunnerConfig{
		LockTTL:         10 * time.Second,
		StalledInterval: time.Second,
		OnCompleted:     func(job models.BackfillJob) { completed.Store(true) },
	})

	runner.Start(ctx)
	defer runner.Stop()

	id, err := q.Enqueue(ctx, models.BackfillJob{
		Token:     "0xusdc",
		Network:   models.NetworkEthereum,
		StartDate: 1600000000,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for handled.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if handled.Load() != 1 {
		t.Fatal("job was not processed")
	}

	job, _ := gotJob.Load().(models.BackfillJob)
	if job.ID != id || job.Token != "0xusdc" || job.StartDate != 1600000000 {
		t.Fatalf("handler got wrong job: %+v", job)
	}
	if job.EnqueuedAt.IsZero() {
		t.Fatal("expected enqueue timestamp")
	}

	// Terminal state and final progress are visible to pollers.
	for time.Now().Before(deadline) {
		pct, state, err := q.Progress(ctx, id)
		if err != nil {
			t.Fatalf("Progress: %v", err)
		}
		if state == "completed" {
			if pct != 100 {
				t.Fatalf("expected 100%% on completion, got %d", pct)
			}
			if !completed.Load() {
				t.Fatal("OnCompleted callback not invoked")
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("job never reached completed state")
}

func TestFailedJobState(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	q := queue.New(rdb, uniqueQueueName(t))
	ctx := context.Background()

	var failed atomic.Bool
	runner := queue.NewRunner(q, func(ctx context.Context, job models.BackfillJob, progress func(int)) error {
		return context.DeadlineExceeded // any handler error marks the job failed
	}, queue.RunnerConfig{
		LockTTL:         10 * time.Second,
		StalledInterval: time.Second,
		OnFailed:        func(job models.BackfillJob, err error) { failed.Store(true) },
	})

	runner.Start(ctx)
	defer runner.Stop()

	id, err := q.Enqueue(ctx, models.BackfillJob{
		Token: "0xusdc", Network: models.NetworkEthereum, StartDate: 1600000000,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_, state, err := q.Progress(ctx, id)
		if err != nil {
			t.Fatalf("Progress: %v", err)
		}
		if state == "failed" {
			if !failed.Load() {
				t.Fatal("OnFailed callback not invoked")
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("job never reached failed state")
}

func TestProgressUnknownJob(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	q := queue.New(rdb, uniqueQueueName(t))

	if _, _, err := q.Progress(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestProgressCorruptField(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	name := uniqueQueueName(t)
	q := queue.New(rdb, name)
	ctx := context.Background()

	// A mangled hash field must surface as an error, not read as 0%.
	key := "queue:" + name + ":job:corrupt"
	if err := rdb.HSet(ctx, key, "state", "waiting", "progress", "not-a-number").Err(); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	if _, _, err := q.Progress(ctx, "corrupt"); err == nil {
		t.Fatal("expected error for corrupt progress field")
	}
}
