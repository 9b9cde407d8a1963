package globals

import (
	"log"
	"os"
	"strconv"
	"time"
)

var (
	JwtSecret = []byte("your_secret_key") // overridden by JWT_SECRET
)

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"

// Config is read from the environment (and .env via godotenv in main).
type Config struct {
	Port            string
	MongoURI        string
	MongoDB         string
	RedisURL        string
	RedisPassword   string
	SlipSecret      string
	VenueTZ         string
	CheckInBefore   time.Duration
	CheckInAfter    time.Duration
	CancelCutoff    time.Duration
	LockTTL         time.Duration
	LockWait        time.Duration
	RateLimitPerMin int
}

func Load() Config {
	cfg := Config{
		Port:            envOr("PORT", ":8080"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         envOr("MONGO_DB", "gameplace"),
		RedisURL:        os.Getenv("REDIS_URL"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		SlipSecret:      envOr("SLIP_SECRET", "change-me"),
		VenueTZ:         envOr("VENUE_TZ", "Local"),
		CheckInBefore:   durationOr("CHECKIN_GRACE_BEFORE", 30*time.Minute),
		CheckInAfter:    durationOr("CHECKIN_GRACE_AFTER", 15*time.Minute),
		CancelCutoff:    durationOr("CANCEL_CUTOFF", 24*time.Hour),
		LockTTL:         durationOr("LOCK_TTL", 10*time.Second),
		LockWait:        durationOr("LOCK_WAIT", 5*time.Second),
		RateLimitPerMin: intOr("RATE_LIMIT_PER_MIN", 30),
	}
	if cfg.Port[0] != ':' {
		cfg.Port = ":" + cfg.Port
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		JwtSecret = []byte(secret)
	} else {
		log.Println("JWT_SECRET not set; using the development secret")
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
