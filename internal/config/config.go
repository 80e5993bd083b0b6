package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret    string
	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	// Server-side attempt clock: extra seconds granted past an attempt's
	// deadline before a submission is treated as a forced auto-submit.
	SubmitGraceSec int

	// Cron schedules for the background jobs.
	SweepSchedule     string // stale open-attempt sweep
	RecomputeSchedule string // full progress reconciliation

	// Open attempts with no time limit are abandoned after this many hours
	// of inactivity.
	AbandonAfterHours int
}

func FromEnv() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	return Config{
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthSecret:    envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		SubmitGraceSec:    envInt("SUBMIT_GRACE_SEC", 5),
		SweepSchedule:     envOr("SWEEP_SCHEDULE", "@every 5m"),
		RecomputeSchedule: envOr("RECOMPUTE_SCHEDULE", "@daily"),
		AbandonAfterHours: envInt("ABANDON_AFTER_HOURS", 24),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d", k, v, def)
		return def
	}
	return n
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
