package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC health endpoint

	Env      string // "dev" | "prod"
	LogLevel string

	// DB
	DBDriver   string // "sqlite" | "postgres"
	DBPath     string // e.g. "./data/oretrack.db"
	DBURL      string // postgres DSN
	DBMaxConns int

	// Distinct-list cache
	RedisAddr       string
	CacheTTLSeconds int

	// HTTP edge
	RateLimit   int // requests/second across all clients, 0 = unlimited
	RateBurst   int
	CORSOrigins []string

	HealthIntervalSeconds int
	SeedDev               bool
}

// Load reads .env (if present) and then the process environment. Values
// already set in the environment win over .env.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("ORETRACK_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	origins := splitCSV(os.Getenv("ORETRACK_CORS_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return Config{
		HTTPAddr: getenvDefault("ORETRACK_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvAllowEmpty("ORETRACK_GRPC_ADDR", ":9090"),

		Env:      env,
		LogLevel: getenvDefault("ORETRACK_LOG_LEVEL", "info"),

		DBDriver:   strings.ToLower(getenvDefault("ORETRACK_DB_DRIVER", "sqlite")),
		DBPath:     getenvDefault("ORETRACK_DB_PATH", "./data/oretrack.db"),
		DBURL:      os.Getenv("ORETRACK_DB_URL"),
		DBMaxConns: getenvInt("ORETRACK_DB_MAX_CONNS", 10),

		RedisAddr:       strings.TrimSpace(os.Getenv("ORETRACK_REDIS_ADDR")),
		CacheTTLSeconds: getenvInt("ORETRACK_CACHE_TTL_SECONDS", 60),

		RateLimit:   getenvInt("ORETRACK_RATE_LIMIT", 0),
		RateBurst:   getenvInt("ORETRACK_RATE_BURST", 20),
		CORSOrigins: origins,

		HealthIntervalSeconds: getenvInt("ORETRACK_HEALTH_INTERVAL_SECONDS", 15),
		SeedDev:               getenvBool("ORETRACK_SEED_DEV", env == "dev"),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvAllowEmpty distinguishes unset (default) from explicitly empty.
func getenvAllowEmpty(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
