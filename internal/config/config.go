package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port            int
	APIKey          string
	CORSAllowOrigin string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Redis (cache + queue)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Chain RPC endpoints (creation-date lookups). Must serve historical
	// state (eth_getCode at past blocks); hosted archive endpoints qualify.
	EthereumRPC string
	PolygonRPC  string

	// External price provider
	CoinGeckoAPIKey string

	// Resolution
	CacheTTLSeconds int
	BackoffBaseMS   int

	// Backfill
	QueueName            string
	BackfillBatchSize    int
	BackfillBatchDelayMS int
	JobLockSeconds       int
	StalledSeconds       int
	MaxStalledCount      int

	// Notifications
	WebhookURL  string
	ServiceName string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		Port:            envInt("PORT", 3001),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "token_oracle"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Redis
		RedisHost:     envStr("REDIS_HOST", "localhost"),
		RedisPort:     envInt("REDIS_PORT", 6379),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		// Chain RPC
		EthereumRPC: envStr("ETHEREUM_RPC_URL", ""),
		PolygonRPC:  envStr("POLYGON_RPC_URL", ""),

		// Provider
		CoinGeckoAPIKey: envStr("COINGECKO_API_KEY", ""),

		// Resolution
		CacheTTLSeconds: envInt("CACHE_TTL_SECONDS", 300),
		BackoffBaseMS:   envInt("BACKOFF_BASE_MS", 1000),

		// Backfill
		QueueName:            envStr("QUEUE_NAME", "price-fetching"),
		BackfillBatchSize:    envInt("BACKFILL_BATCH_SIZE", 5),
		BackfillBatchDelayMS: envInt("BACKFILL_BATCH_DELAY_MS", 1500),
		JobLockSeconds:       envInt("JOB_LOCK_SECONDS", 600),
		StalledSeconds:       envInt("STALLED_CHECK_SECONDS", 60),
		MaxStalledCount:      envInt("MAX_STALLED_COUNT", 10),

		// Notifications
		WebhookURL:  envStr("WEBHOOK_URL", ""),
		ServiceName: envStr("SERVICE_NAME", "TokenOracle"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.DBUser == "" {
		fmt.Println("[WARN] DB_USER not set — server will run without the historical store (live-only resolution)")
	}
	if c.EthereumRPC == "" && c.PolygonRPC == "" {
		fmt.Println("[WARN] no chain RPC endpoint configured — backfill scheduling will fail for every network")
	}
	if c.CoinGeckoAPIKey == "" {
		fmt.Println("[WARN] COINGECKO_API_KEY not set — using the public rate-limited endpoint")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}

	if c.CacheTTLSeconds <= 0 {
		errs = append(errs, "CACHE_TTL_SECONDS must be positive")
	}
	if c.BackfillBatchSize <= 0 {
		errs = append(errs, "BACKFILL_BATCH_SIZE must be positive")
	}
	if c.JobLockSeconds <= 0 {
		errs = append(errs, "JOB_LOCK_SECONDS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Token Price Oracle Configuration ===")
	fmt.Printf("Port: %d\n", c.Port)
	fmt.Printf("Database: %s:%d/%s\n", c.DBHost, c.DBPort, c.DBName)
	fmt.Printf("Redis: %s:%d (db %d)\n", c.RedisHost, c.RedisPort, c.RedisDB)
	fmt.Println("--------------------------------------")
	fmt.Printf("Ethereum RPC: %s\n", boolLabel(c.EthereumRPC != "", "configured", "not set"))
	fmt.Printf("Polygon RPC:  %s\n", boolLabel(c.PolygonRPC != "", "configured", "not set"))
	fmt.Printf("CoinGecko:    %s\n", boolLabel(c.CoinGeckoAPIKey != "", "keyed", "public endpoint"))
	fmt.Println("--------------------------------------")
	fmt.Printf("Cache TTL: %s\n", c.CacheTTL())
	fmt.Printf("Backoff base delay: %s\n", c.BackoffBase())
	fmt.Printf("Backfill: batch %d, inter-batch delay %s\n", c.BackfillBatchSize, c.BackfillBatchDelay())
	fmt.Printf("Queue %q: lock %ds, stalled check %ds, max stalls %d\n",
		c.QueueName, c.JobLockSeconds, c.StalledSeconds, c.MaxStalledCount)
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

func (c *Config) BackfillBatchDelay() time.Duration {
	return time.Duration(c.BackfillBatchDelayMS) * time.Millisecond
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
