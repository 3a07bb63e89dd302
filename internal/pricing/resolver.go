package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/oracle-backend/internal/backoff"
	"github.com/kjannette/oracle-backend/internal/models"
)

var (
	ErrMissingToken       = errors.New("token is required")
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// Store is the slice of the price repository the resolver needs. All three
// lookups return (nil, nil) when no matching record exists.
type Store interface {
	GetExact(ctx context.Context, token string, network models.Network, ts int64) (*models.PriceRecord, error)
	NearestBefore(ctx context.Context, token string, network models.Network, ts int64) (*models.PriceRecord, error)
	NearestAfter(ctx context.Context, token string, network models.Network, ts int64) (*models.PriceRecord, error)
}

// Cache returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithExpiry(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Provider is the external price source. A nil price with a nil error means
// the provider had no data for that moment.
type Provider interface {
	PriceAtDate(ctx context.Context, token string, network models.Network, ts int64) (*float64, error)
}

// Resolver answers price queries through a tiered fallback chain:
// cache, exact record, interpolation between bracketing records, live fetch.
// Store and cache may be nil; missing tiers are skipped, not errors.
type Resolver struct {
	store    Store
	cache    Cache
	provider Provider

	cacheTTL    time.Duration
	backoffBase time.Duration
	now         func() time.Time
}

func NewResolver(store Store, cache Cache, provider Provider, cacheTTL, backoffBase time.Duration) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = 300 * time.Second
	}
	return &Resolver{
		store:       store,
		cache:       cache,
		provider:    provider,
		cacheTTL:    cacheTTL,
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

// Resolve returns the price of token on network at ts (nil ts = now).
// Cache hits are returned verbatim; every other tier writes through to the
// cache before returning. Store failures degrade to the live tier. A
// provider failure, after one paced attempt, is the caller's problem.
func (r *Resolver) Resolve(ctx context.Context, token string, network models.Network, ts *int64) (*models.PricePoint, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if !network.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}

	key := models.CacheKey(token, network, ts)

	if r.cache != nil {
		b, err := r.cache.Get(ctx, key)
		if err != nil {
			fmt.Printf("[RESOLVER] cache read failed, skipping tier: %v\n", err)
		} else if b != nil {
			var pt models.PricePoint
			if err := json.Unmarshal(b, &pt); err == nil {
				pt.Source = models.SourceCache
				return &pt, nil
			}
			fmt.Printf("[RESOLVER] discarding malformed cache entry %s\n", key)
		}
	}

	pt := r.resolveFromStore(ctx, token, network, ts)

	if pt == nil {
		live, err := r.fetchLive(ctx, token, network, ts)
		if err != nil {
			return nil, err
		}
		pt = live
	}

	r.writeThrough(ctx, key, pt)
	return pt, nil
}

// resolveFromStore covers the exact and interpolated tiers. It returns nil
// when the query has no timestamp, the store is absent or failing, or no
// usable records exist.
func (r *Resolver) resolveFromStore(ctx context.Context, token string, network models.Network, ts *int64) *models.PricePoint {
	if ts == nil || r.store == nil {
		return nil
	}

	exact, err := r.store.GetExact(ctx, token, network, *ts)
	if err != nil {
		fmt.Printf("[RESOLVER] store unavailable, falling through to live: %v\n", err)
		return nil
	}
	if exact != nil {
		return &models.PricePoint{
			Token:     token,
			Network:   network,
			Timestamp: exact.Timestamp,
			Price:     exact.Price,
			Source:    models.SourceDatabase,
		}
	}

	before, err := r.store.NearestBefore(ctx, token, network, *ts)
	if err != nil {
		fmt.Printf("[RESOLVER] bracket query failed, falling through to live: %v\n", err)
		return nil
	}
	after, err := r.store.NearestAfter(ctx, token, network, *ts)
	if err != nil {
		fmt.Printf("[RESOLVER] bracket query failed, falling through to live: %v\n", err)
		return nil
	}

	// Interpolation needs a full bracket with real prices on both ends.
	if before == nil || after == nil || before.Price == nil || after.Price == nil {
		return nil
	}

	var price float64
	if before.Timestamp == after.Timestamp {
		// Degenerate bracket; never divide by a zero-width interval.
		price = *before.Price
	} else {
		price = Interpolate(*ts, before.Timestamp, *before.Price, after.Timestamp, *after.Price)
	}

	return &models.PricePoint{
		Token:     token,
		Network:   network,
		Timestamp: *ts,
		Price:     &price,
		Source:    models.SourceInterpolated,
	}
}

func (r *Resolver) fetchLive(ctx context.Context, token string, network models.Network, ts *int64) (*models.PricePoint, error) {
	at := r.now().Unix()
	if ts != nil {
		at = *ts
	}

	// Fresh executor per request: backoff state never leaks across requests.
	exec := backoff.NewExecutor(r.backoffBase)

	var price *float64
	err := exec.Execute(ctx, func() error {
		p, err := r.provider.PriceAtDate(ctx, token, network, at)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("live price fetch: %w", err)
	}

	return &models.PricePoint{
		Token:     token,
		Network:   network,
		Timestamp: at,
		Price:     price,
		Source:    models.SourceLive,
	}, nil
}

// writeThrough caches the result without its source; the source is
// re-stamped as "cache" on a later hit.
func (r *Resolver) writeThrough(ctx context.Context, key string, pt *models.PricePoint) {
	if r.cache == nil {
		return
	}
	entry := *pt
	entry.Source = ""
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.cache.SetWithExpiry(ctx, key, b, r.cacheTTL); err != nil {
		fmt.Printf("[RESOLVER] cache write failed: %v\n", err)
	}
}
