package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL    string
	FeedChannel string
	DatabaseURL string

	SendQueueSize int
	PingInterval  time.Duration

	// ResignTrustClientSeat restores the legacy behaviour of taking the resigning
	// seat from the client message instead of the registry.
	ResignTrustClientSeat bool

	StartFEN     string
	ResultsLimit int
}

var (
	ErrBadListenAddr = errors.New("LISTEN_ADDR must be host:port")
	ErrBadQueueSize  = errors.New("SEND_QUEUE_SIZE must be between 4 and 4096")
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":3000",
		FeedChannel:   "chessroom:events",
		SendQueueSize: 64,
		PingInterval:  15 * time.Second,
		ResultsLimit:  20,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	} else if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.ListenAddr = ":" + p
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("FEED_CHANNEL")); v != "" {
		cfg.FeedChannel = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("SEND_QUEUE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SEND_QUEUE_SIZE: %w", err)
		}
		cfg.SendQueueSize = n
	}
	if v := strings.TrimSpace(os.Getenv("PING_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PingInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("RESIGN_TRUST_CLIENT_SEAT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.ResignTrustClientSeat = b
		}
	}
	cfg.StartFEN = strings.TrimSpace(os.Getenv("START_FEN"))
	if v := strings.TrimSpace(os.Getenv("RESULTS_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ResultsLimit = n
		}
	}

	if !strings.Contains(cfg.ListenAddr, ":") {
		return nil, ErrBadListenAddr
	}
	if cfg.SendQueueSize < 4 || cfg.SendQueueSize > 4096 {
		return nil, ErrBadQueueSize
	}
	return cfg, nil
}

// ClientConfig is what the terminal client and roomcheck read.
type ClientConfig struct {
	RoomURL  string
	Name     string
	RedisURL string

	// MessagesDir holds YAML overrides for the client's notification texts.
	MessagesDir string
}

// LoadClient reads ROOM_URL (default http://localhost:3000), PLAYER_NAME, REDIS_URL
// and MESSAGES_DIR.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{RoomURL: "http://localhost:3000"}
	if v := strings.TrimSpace(os.Getenv("ROOM_URL")); v != "" {
		cfg.RoomURL = strings.TrimRight(v, "/")
	}
	if !strings.HasPrefix(cfg.RoomURL, "http://") && !strings.HasPrefix(cfg.RoomURL, "https://") {
		return nil, errors.New("ROOM_URL must start with http:// or https://")
	}
	cfg.Name = strings.TrimSpace(os.Getenv("PLAYER_NAME"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	return cfg, nil
}

// WebSocketURL turns the room's http(s) base into its ws(s) endpoint.
func (c *ClientConfig) WebSocketURL() string {
	u := c.RoomURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
