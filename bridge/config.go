package bridge

import (
	"os"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/hibiken/asynq"
)

const (
	DefaultRedisAddr = "127.0.0.1:6379"
	DefaultJWTSecret = "crypticscore-bridge-secret"
	DefaultHTTPPort  = 8090
	ShutdownTimeout  = 30 * time.Second
)

// Config holds the results bridge settings.
type Config struct {
	RedisAddr       string
	HTTPPort        int
	JWTSecret       []byte
	ShutdownTimeout time.Duration
	AsynqConfig     asynq.Config
}

// NewConfig reads the bridge settings from the environment.
func NewConfig(logger log.Logger) *Config {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Config{
		RedisAddr:       getRedisAddr(),
		HTTPPort:        getHTTPPort(),
		JWTSecret:       initializeJWTSecret(logger),
		ShutdownTimeout: ShutdownTimeout,
		AsynqConfig: asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ShutdownTimeout: ShutdownTimeout,
			RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		},
	}
}

func initializeJWTSecret(logger log.Logger) []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Warn("Using default JWT secret, set JWT_SECRET for production deployment")
		secret = DefaultJWTSecret
	}
	return []byte(secret)
}

func getRedisAddr() string {
	// REDIS_URL first (Docker Compose style)
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return DefaultRedisAddr
}

func getHTTPPort() int {
	if port := os.Getenv("BRIDGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			return p
		}
	}
	return DefaultHTTPPort
}
