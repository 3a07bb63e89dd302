package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kjannette/oracle-backend/internal/cache"
	"github.com/kjannette/oracle-backend/internal/testutil"
)

func TestPriceCache_RoundTrip(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	c := cache.New(rdb)
	ctx := context.Background()

	key := fmt.Sprintf("price:0xtest:%d:current", time.Now().UnixNano())
	val := []byte(`{"token":"0xtest","price":1.01}`)

	if err := c.SetWithExpiry(ctx, key, val, 5*time.Second); err != nil {
		t.Fatalf("SetWithExpiry: %v", err)
	}

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("value mismatch: %s", got)
	}
}

func TestPriceCache_MissIsNilNil(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	c := cache.New(rdb)

	got, err := c.Get(context.Background(), "price:0xnever:ethereum:current")
	if err != nil {
		t.Fatalf("miss must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %s", got)
	}
}

func TestPriceCache_Expiry(t *testing.T) {
	rdb := testutil.SetupRedis(t)
	c := cache.New(rdb)
	ctx := context.Background()

	key := fmt.Sprintf("price:0xexpiry:%d", time.Now().UnixNano())
	if err := c.SetWithExpiry(ctx, key, []byte("x"), 500*time.Millisecond); err != nil {
		t.Fatalf("SetWithExpiry: %v", err)
	}

	time.Sleep(700 * time.Millisecond)

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if got != nil {
		t.Fatal("entry should have expired")
	}
}
