package models

import (
	"fmt"
	"time"
)

// Network is a supported blockchain network.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
)

func (n Network) Valid() bool {
	return n == NetworkEthereum || n == NetworkPolygon
}

func ParseNetwork(s string) (Network, error) {
	n := Network(s)
	if !n.Valid() {
		return "", fmt.Errorf("unsupported network: %q", s)
	}
	return n, nil
}

// Resolution sources, in tier order.
const (
	SourceCache        = "cache"
	SourceDatabase     = "database"
	SourceInterpolated = "interpolated"
	SourceLive         = "live"
)

// PricePoint is a resolved price answer. Price is nil when the provider had
// no data for the requested moment; that is a valid result, not zero.
type PricePoint struct {
	Token     string   `json:"token"`
	Network   Network  `json:"network"`
	Timestamp int64    `json:"timestamp"`
	Price     *float64 `json:"price"`
	Source    string   `json:"source,omitempty"`
}

// PriceRecord is a persisted daily price. Identity is (token, network, timestamp).
type PriceRecord struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Network   Network   `json:"network"`
	Timestamp int64     `json:"timestamp"`
	Price     *float64  `json:"price"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryPoint is the trimmed shape served by the history endpoint.
type HistoryPoint struct {
	Timestamp int64    `json:"timestamp"`
	Price     *float64 `json:"price"`
}

// BackfillJob asks the worker to populate one record per calendar day for a
// token, from StartDate (unix seconds) through the present.
type BackfillJob struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	Network    Network   `json:"network"`
	StartDate  int64     `json:"startDate"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// CacheKey builds the cache key for a price lookup. A nil timestamp means
// "current price" and keys under the literal "current" suffix.
func CacheKey(token string, network Network, ts *int64) string {
	suffix := "current"
	if ts != nil {
		suffix = fmt.Sprintf("%d", *ts)
	}
	return fmt.Sprintf("price:%s:%s:%s", token, network, suffix)
}

// ISODate returns the UTC calendar date (YYYY-MM-DD) for a unix timestamp.
func ISODate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
