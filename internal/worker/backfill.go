package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kjannette/oracle-backend/internal/backoff"
	"github.com/kjannette/oracle-backend/internal/models"
)

const dayInSeconds = 86400

// Fetcher is the external price source the backfill pulls from.
type Fetcher interface {
	PriceAtDate(ctx context.Context, token string, network models.Network, ts int64) (*float64, error)
}

// Store persists fetched records; Upsert is keyed on (token, network, timestamp).
type Store interface {
	Upsert(ctx context.Context, rec *models.PriceRecord) error
}

// Backfill populates the store with one price record per calendar day from a
// job's start date to now. Dates are fetched in fixed-size concurrent
// batches with a pause between batches to respect the provider's rate limit.
// A single date failing is skipped, not fatal; a later job can refill gaps.
type Backfill struct {
	fetcher Fetcher
	store   Store

	batchSize   int
	batchDelay  time.Duration
	backoffBase time.Duration
	now         func() time.Time
}

func NewBackfill(fetcher Fetcher, store Store, batchSize int, batchDelay, backoffBase time.Duration) *Backfill {
	if batchSize <= 0 {
		batchSize = 5
	}
	if batchDelay < 0 {
		batchDelay = 1500 * time.Millisecond
	}
	return &Backfill{
		fetcher:     fetcher,
		store:       store,
		batchSize:   batchSize,
		batchDelay:  batchDelay,
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

// Run executes one backfill job. Progress is reported once per batch as
// round(batchStart/totalDates*100). Only malformed jobs or a cancelled
// context fail the run; per-date fetch and store errors are logged and the
// date is left absent.
func (b *Backfill) Run(ctx context.Context, job models.BackfillJob, progress func(int)) error {
	if job.Token == "" {
		return fmt.Errorf("job %s has no token", job.ID)
	}
	if !job.Network.Valid() {
		return fmt.Errorf("job %s has unsupported network %q", job.ID, job.Network)
	}

	endDate := b.now().Unix()
	var dates []int64
	for d := job.StartDate; d <= endDate; d += dayInSeconds {
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		fmt.Printf("[BACKFILL] Job %s: start date in the future, nothing to do\n", job.ID)
		return nil
	}

	fmt.Printf("[BACKFILL] Job %s: %d days for %s on %s\n", job.ID, len(dates), job.Token, job.Network)

	// One executor per job run: consecutive failures inside this job compound
	// the pacing toward the provider, but other jobs are unaffected.
	exec := backoff.NewExecutor(b.backoffBase)

	for i := 0; i < len(dates); i += b.batchSize {
		batch := dates[i:min(i+b.batchSize, len(dates))]

		prices := make([]*float64, len(batch))
		errs := make([]error, len(batch))

		var wg sync.WaitGroup
		for j, date := range batch {
			wg.Add(1)
			go func(j int, date int64) {
				defer wg.Done()
				errs[j] = exec.Execute(ctx, func() error {
					p, err := b.fetcher.PriceAtDate(ctx, job.Token, job.Network, date)
					if err != nil {
						return err
					}
					prices[j] = p
					return nil
				})
			}(j, date)
		}
		wg.Wait()

		// Persist only after the whole batch has reported back.
		for j, date := range batch {
			if errs[j] != nil {
				fmt.Printf("[BACKFILL] Skipping %s: %v\n", models.ISODate(date), errs[j])
				continue
			}
			rec := &models.PriceRecord{
				Token:     job.Token,
				Network:   job.Network,
				Timestamp: date,
				Price:     prices[j],
				Date:      models.ISODate(date),
			}
			if err := b.store.Upsert(ctx, rec); err != nil {
				fmt.Printf("[BACKFILL] Failed to store %s: %v\n", rec.Date, err)
			}
		}

		if progress != nil {
			progress(int(math.Round(float64(i) / float64(len(dates)) * 100)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.batchDelay):
		}
	}

	return nil
}
