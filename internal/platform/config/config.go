package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string

	// DatabaseURL selects Postgres stores; empty runs in-memory.
	DatabaseURL  string
	StoreTimeout time.Duration

	Redis     RedisConfig
	Kafka     KafkaConfig
	Ledger    LedgerConfig
	JWT       JWTConfig
	Expiry    ExpiryConfig
	Reconcile ReconcileConfig
	Outbox    OutboxConfig

	// PayloadMasterKey derives the per-credential payload keys. At least 32 bytes.
	PayloadMasterKey string
}

// RedisConfig configures the reconcile queue and expiry lock client. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the lifecycle event publisher. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// LedgerConfig selects the remote ledger gateway. Empty GatewayURL uses the local ledger.
type LedgerConfig struct {
	GatewayURL       string
	APIKey           string
	Timeout          time.Duration
	MaxRetries       uint64
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

type ExpiryConfig struct {
	Interval    time.Duration
	BatchSize   int
	Parallelism int
}

type ReconcileConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

type OutboxConfig struct {
	Interval  time.Duration
	BatchSize int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	e := &envReader{}
	cfg := Server{
		Addr:         e.str("TOURISTID_ADDR", ":8080"),
		LogLevel:     e.str("LOG_LEVEL", "info"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoreTimeout: e.duration("STORE_TIMEOUT", 5*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           e.list("KAFKA_BROKERS"),
			Topic:             e.str("KAFKA_LIFECYCLE_TOPIC", "digitalid.lifecycle"),
			ClientID:          e.str("KAFKA_CLIENT_ID", "touristid"),
			Partitions:        int32(e.integer("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(e.integer("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Ledger: LedgerConfig{
			GatewayURL:       os.Getenv("LEDGER_GATEWAY_URL"),
			APIKey:           os.Getenv("LEDGER_GATEWAY_API_KEY"),
			Timeout:          e.duration("LEDGER_TIMEOUT", 10*time.Second),
			MaxRetries:       uint64(e.integer("LEDGER_MAX_RETRIES", 3)),
			BreakerThreshold: e.integer("LEDGER_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  e.duration("LEDGER_BREAKER_COOLDOWN", 30*time.Second),
		},
		JWT: JWTConfig{
			// Development default; override in every deployed environment.
			SigningKey: e.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     e.str("JWT_ISSUER", "touristid"),
			Audience:   e.str("JWT_AUDIENCE", "touristid-api"),
		},
		Expiry: ExpiryConfig{
			Interval:    e.duration("EXPIRY_SWEEP_INTERVAL", time.Hour),
			BatchSize:   e.integer("EXPIRY_SWEEP_BATCH_SIZE", 100),
			Parallelism: e.integer("EXPIRY_SWEEP_PARALLELISM", 8),
		},
		Reconcile: ReconcileConfig{
			Interval:    e.duration("RECONCILE_INTERVAL", 10*time.Second),
			MaxAttempts: e.integer("RECONCILE_MAX_ATTEMPTS", 10),
		},
		Outbox: OutboxConfig{
			Interval:  e.duration("OUTBOX_RELAY_INTERVAL", time.Second),
			BatchSize: e.integer("OUTBOX_RELAY_BATCH_SIZE", 100),
		},
		PayloadMasterKey: e.str("PAYLOAD_MASTER_KEY", "dev-payload-master-key-change-me-0123456789"),
	}
	if e.err != nil {
		return Server{}, e.err
	}
	if len(cfg.PayloadMasterKey) < 32 {
		return Server{}, errors.New("PAYLOAD_MASTER_KEY must be at least 32 bytes")
	}
	return cfg, nil
}

// LocalOnly reports whether the service runs without a remote ledger gateway.
func (s Server) LocalOnly() bool {
	return s.Ledger.GatewayURL == ""
}

// envReader keeps the first parse error so FromEnv can report it once.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
