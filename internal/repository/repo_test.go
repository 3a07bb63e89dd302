package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kjannette/oracle-backend/internal/db"
	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/kjannette/oracle-backend/internal/repository"
	"github.com/kjannette/oracle-backend/internal/testutil"
)

func ptr(v float64) *float64 { return &v }

// testToken returns a unique token address per test run so reruns against
// the same database do not collide.
func testToken() string {
	return fmt.Sprintf("0xtest%d", time.Now().UnixNano())
}

func setupRepo(t *testing.T) *repository.PriceRepo {
	t.Helper()
	pool := testutil.SetupPool(t)
	if err := db.Migrate(pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewPriceRepo(pool)
}

func TestPriceRepo_UpsertAndExact(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	token := testToken()

	rec := &models.PriceRecord{
		Token:     token,
		Network:   models.NetworkEthereum,
		Timestamp: 1700000000,
		Price:     ptr(1.01),
		Date:      models.ISODate(1700000000),
	}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.GetExact(ctx, token, models.NetworkEthereum, 1700000000)
	if err != nil {
		t.Fatalf("GetExact: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.Price == nil || *got.Price != 1.01 {
		t.Fatalf("price mismatch: %+v", got)
	}
	if got.Date != "2023-11-14" {
		t.Fatalf("date mismatch: %s", got.Date)
	}
	t.Logf("Stored record id=%d date=%s", got.ID, got.Date)

	// Upsert overwrites in place.
	rec.Price = ptr(1.02)
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, err = repo.GetExact(ctx, token, models.NetworkEthereum, 1700000000)
	if err != nil {
		t.Fatalf("GetExact after overwrite: %v", err)
	}
	if *got.Price != 1.02 {
		t.Fatalf("expected overwritten price 1.02, got %v", *got.Price)
	}

	// Miss comes back as nil, nil.
	miss, err := repo.GetExact(ctx, token, models.NetworkEthereum, 123)
	if err != nil {
		t.Fatalf("GetExact miss: %v", err)
	}
	if miss != nil {
		t.Fatalf("expected nil on miss, got %+v", miss)
	}
}

func TestPriceRepo_NullPrice(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	token := testToken()

	rec := &models.PriceRecord{
		Token:     token,
		Network:   models.NetworkPolygon,
		Timestamp: 1700000000,
		Price:     nil,
		Date:      models.ISODate(1700000000),
	}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert null price: %v", err)
	}

	got, err := repo.GetExact(ctx, token, models.NetworkPolygon, 1700000000)
	if err != nil {
		t.Fatalf("GetExact: %v", err)
	}
	if got == nil || got.Price != nil {
		t.Fatalf("null price must round-trip as nil, got %+v", got)
	}
}

func TestPriceRepo_Brackets(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	token := testToken()

	base := int64(1700000000)
	for i, price := range []float64{100, 200, 300} {
		ts := base + int64(i)*86400
		rec := &models.PriceRecord{
			Token: token, Network: models.NetworkEthereum,
			Timestamp: ts, Price: ptr(price), Date: models.ISODate(ts),
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	mid := base + 86400/2
	before, err := repo.NearestBefore(ctx, token, models.NetworkEthereum, mid)
	if err != nil {
		t.Fatalf("NearestBefore: %v", err)
	}
	if before == nil || before.Timestamp != base {
		t.Fatalf("expected before at %d, got %+v", base, before)
	}

	after, err := repo.NearestAfter(ctx, token, models.NetworkEthereum, mid)
	if err != nil {
		t.Fatalf("NearestAfter: %v", err)
	}
	if after == nil || after.Timestamp != base+86400 {
		t.Fatalf("expected after at %d, got %+v", base+86400, after)
	}

	// At-or-before / at-or-after are inclusive.
	exactBefore, err := repo.NearestBefore(ctx, token, models.NetworkEthereum, base)
	if err != nil {
		t.Fatalf("NearestBefore inclusive: %v", err)
	}
	if exactBefore == nil || exactBefore.Timestamp != base {
		t.Fatalf("inclusive before failed: %+v", exactBefore)
	}

	// No record before the first one.
	none, err := repo.NearestBefore(ctx, token, models.NetworkEthereum, base-1)
	if err != nil {
		t.Fatalf("NearestBefore out of range: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil, got %+v", none)
	}
}

func TestPriceRepo_History(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	token := testToken()

	base := int64(1700000000)
	// Insert out of order; History must sort ascending.
	for _, i := range []int64{2, 0, 1} {
		ts := base + i*86400
		rec := &models.PriceRecord{
			Token: token, Network: models.NetworkEthereum,
			Timestamp: ts, Price: ptr(float64(100 + i)), Date: models.ISODate(ts),
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	points, err := repo.History(ctx, token, models.NetworkEthereum)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp <= points[i-1].Timestamp {
			t.Fatalf("history not ascending: %+v", points)
		}
	}

	// Other networks do not leak in.
	other, err := repo.History(ctx, token, models.NetworkPolygon)
	if err != nil {
		t.Fatalf("History other network: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no polygon records, got %d", len(other))
	}
}
