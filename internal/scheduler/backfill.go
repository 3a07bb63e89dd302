package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/kjannette/oracle-backend/internal/backoff"
	"github.com/kjannette/oracle-backend/internal/models"
)

// CreationDater resolves the earliest on-chain activity for a token.
type CreationDater interface {
	EarliestTransferTimestamp(ctx context.Context, token string, network models.Network) (int64, error)
}

// JobQueue accepts backfill jobs for asynchronous processing.
type JobQueue interface {
	Enqueue(ctx context.Context, job models.BackfillJob) (string, error)
}

// BackfillScheduler turns a schedule request into a queued backfill job.
// The job's start date is the token's creation date; if that cannot be
// determined the request fails fast and nothing is enqueued — a guessed
// start date would either miss history or hammer the provider for nothing.
type BackfillScheduler struct {
	chain       CreationDater
	queue       JobQueue
	backoffBase time.Duration
}

func NewBackfillScheduler(chain CreationDater, queue JobQueue, backoffBase time.Duration) *BackfillScheduler {
	return &BackfillScheduler{chain: chain, queue: queue, backoffBase: backoffBase}
}

// Schedule enqueues a backfill job for token on network and returns the job id.
func (s *BackfillScheduler) Schedule(ctx context.Context, token string, network models.Network) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	if !network.Valid() {
		return "", fmt.Errorf("unsupported network: %q", network)
	}

	exec := backoff.NewExecutor(s.backoffBase)
	var startDate int64
	err := exec.Execute(ctx, func() error {
		ts, err := s.chain.EarliestTransferTimestamp(ctx, token, network)
		if err != nil {
			return err
		}
		startDate = ts
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve creation date: %w", err)
	}

	id, err := s.queue.Enqueue(ctx, models.BackfillJob{
		Token:     token,
		Network:   network,
		StartDate: startDate,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue backfill: %w", err)
	}

	fmt.Printf("[SCHEDULER] Backfill scheduled for %s on %s from %s (job %s)\n",
		token, network, models.ISODate(startDate), id)
	return id, nil
}
