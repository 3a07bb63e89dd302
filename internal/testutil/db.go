package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// SetupPool creates a pgxpool.Pool for integration tests, skipping the test
// when Postgres is unreachable. Connection details come from env vars or
// sensible defaults.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		host := EnvOr("DB_HOST", "localhost")
		port := EnvOr("DB_PORT", "5432")
		name := EnvOr("DB_NAME", "token_oracle")
		user := EnvOr("DB_USER", "postgres")
		pass := EnvOr("DB_PASSWORD", "")
		dsn = "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Skipf("postgres not available, skipping: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// SetupRedis creates a Redis client for integration tests, skipping the
// test when Redis is unreachable.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()

	_ = godotenv.Load("../../.env")

	rdb := redis.NewClient(&redis.Options{
		Addr:     EnvOr("REDIS_HOST", "localhost") + ":" + EnvOr("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       15, // keep test keys away from the live db
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available, skipping: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
