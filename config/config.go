package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"collabcore/pkg/logger"
)

type Config struct {
	Port               string
	JWTSecret          string
	DatabaseURL        string
	RedisAddr          string
	RedisChannelPrefix string
	Collab             Collab
}

// Collab holds the tunables of the collaboration core.
type Collab struct {
	ConcurrencyWindow time.Duration
	MaxClockSkew      time.Duration
	GracePeriod       time.Duration
	TypingIdle        time.Duration
	CursorInterval    time.Duration
	OpLogCapacity     int
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	FlushInterval     time.Duration
	RoomIdleTTL       time.Duration
}

func DefaultCollab() Collab {
	return Collab{
		ConcurrencyWindow: time.Second,
		MaxClockSkew:      5 * time.Second,
		GracePeriod:       30 * time.Second,
		TypingIdle:        4 * time.Second,
		CursorInterval:    50 * time.Millisecond,
		OpLogCapacity:     1000,
		SendBuffer:        256,
		MessagesPerSecond: 100,
		MessageBurst:      200,
		FlushInterval:     10 * time.Second,
		RoomIdleTTL:       10 * time.Minute,
	}
}

// Load reads the configuration from the environment. Call godotenv.Load first
// if a .env file should be honored.
func Load() Config {
	d := DefaultCollab()
	return Config{
		Port:               envString("PORT", "8080"),
		JWTSecret:          envString("JWT_SECRET", ""),
		DatabaseURL:        envString("DATABASE_URL", ""),
		RedisAddr:          envString("REDIS_ADDR", ""),
		RedisChannelPrefix: envString("REDIS_CHANNEL_PREFIX", "collab:room:"),
		Collab: Collab{
			ConcurrencyWindow: envDuration("COLLAB_CONCURRENCY_WINDOW", d.ConcurrencyWindow),
			MaxClockSkew:      envDuration("COLLAB_MAX_CLOCK_SKEW", d.MaxClockSkew),
			GracePeriod:       envDuration("COLLAB_GRACE_PERIOD", d.GracePeriod),
			TypingIdle:        envDuration("COLLAB_TYPING_IDLE", d.TypingIdle),
			CursorInterval:    envDuration("COLLAB_CURSOR_INTERVAL", d.CursorInterval),
			OpLogCapacity:     envInt("COLLAB_OPLOG_CAPACITY", d.OpLogCapacity),
			SendBuffer:        envInt("COLLAB_SEND_BUFFER", d.SendBuffer),
			MessagesPerSecond: envFloat("COLLAB_MESSAGES_PER_SECOND", d.MessagesPerSecond),
			MessageBurst:      envInt("COLLAB_MESSAGE_BURST", d.MessageBurst),
			FlushInterval:     envDuration("COLLAB_FLUSH_INTERVAL", d.FlushInterval),
			RoomIdleTTL:       envDuration("COLLAB_ROOM_IDLE_TTL", d.RoomIdleTTL),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Sugar.Warnf("Invalid duration %s=%q, using default %v", key, v, def)
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Sugar.Warnf("Invalid integer %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		logger.Sugar.Warnf("Invalid number %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}
