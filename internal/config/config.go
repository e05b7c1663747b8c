package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// SearchServiceURL: если задан, каждая запись разговора переиндексирует
	// его в search-service (POST /search/index/conversation).
	SearchServiceURL string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// FeedBackend выбирает ленту: "memory" для одного узла, "redis" для pub/sub.
	FeedBackend string
	RedisURL    string

	KafkaBrokers string
	KafkaTopic   string

	JWTSecret       string
	AgentSessionTTL time.Duration

	StrictTransitions bool

	BillingMaxAttempts uint64
	BillingInterval    time.Duration
	BillingBackoff     string

	// WSCommandRate и WSCommandBurst ограничивают входящие команды websocket на соединение.
	WSCommandRate  float64
	WSCommandBurst int
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		SearchServiceURL: getEnv("SEARCH_SERVICE_URL", ""),
		FeedBackend:      strings.ToLower(getEnv("FEED_BACKEND", FeedMemory)),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "support-chat.events"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		BillingBackoff:   strings.ToLower(getEnv("BILLING_BACKOFF", "constant")),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "support_chat")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	var err error
	if cfg.AgentSessionTTL, err = getDuration("AGENT_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StrictTransitions, err = getBool("STRICT_STATUS_TRANSITIONS", false); err != nil {
		return nil, err
	}
	if cfg.BillingMaxAttempts, err = getUint("BILLING_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.BillingInterval, err = getDuration("BILLING_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSCommandRate, err = getFloat("WS_COMMAND_RATE", 10); err != nil {
		return nil, err
	}
	burst, err := getUint("WS_COMMAND_BURST", 20)
	if err != nil {
		return nil, err
	}
	cfg.WSCommandBurst = int(burst)
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		if c.AppEnv == "production" {
			return errors.New("config: in production JWT_SECRET is required")
		}
		c.JWTSecret = "dev-secret"
	}
	switch c.FeedBackend {
	case FeedMemory:
	case FeedRedis:
		if c.RedisURL == "" {
			return errors.New("config: FEED_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown FEED_BACKEND %q", c.FeedBackend)
	}
	if c.BillingBackoff != "constant" && c.BillingBackoff != "exponential" {
		return fmt.Errorf("config: BILLING_BACKOFF must be constant or exponential, got %q", c.BillingBackoff)
	}
	if c.AgentSessionTTL <= 0 {
		return errors.New("config: AGENT_SESSION_TTL must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}
