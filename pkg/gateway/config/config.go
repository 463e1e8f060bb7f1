package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the server is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// In-memory limits (per client).
	LimitRPS   float64
	LimitBurst int

	// Client sessions.
	SessionTTL  time.Duration
	MaxSessions int

	// App timing.
	LoginDelay         time.Duration
	LoginErrorDuration time.Duration
	ToastDuration      time.Duration

	// Video jobs.
	VideoPollInterval time.Duration
	VideoPollTimeout  time.Duration // 0 => poll until the vendor finishes

	// State event stream (/v1/events).
	EventsKeepalive time.Duration

	// Live WebSocket mode (/v1/live).
	LiveMaxFrameBytes  int
	LiveMaxSessions    int
	LiveWSPingInterval time.Duration
	LiveWSWriteTimeout time.Duration
	LiveOutboundQueue  int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Optional lineup override (YAML). Empty uses the embedded lineup.
	CatalogFile string

	LogLevel slog.Level

	// Vendor credential. Optional: calls fail with a configuration error when unset.
	GeminiAPIKey  string
	GeminiBaseURL string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VIBEVOTE_ADDR", ":8080"),
		TrustProxyHeaders:   envBoolOr("VIBEVOTE_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:        envInt64Or("VIBEVOTE_MAX_BODY_BYTES", 16<<20), // 16 MiB, room for a base64 photo
		CORSAllowedOrigins:  make(map[string]struct{}),
		LimitRPS:            envFloat64Or("VIBEVOTE_RATE_LIMIT_RPS", 10.0),
		LimitBurst:          envIntOr("VIBEVOTE_RATE_LIMIT_BURST", 20),
		SessionTTL:          envDurationOr("VIBEVOTE_SESSION_TTL", 12*time.Hour),
		MaxSessions:         envIntOr("VIBEVOTE_MAX_SESSIONS", 10000),
		LoginDelay:          envDurationOr("VIBEVOTE_LOGIN_DELAY", 1500*time.Millisecond),
		LoginErrorDuration:  envDurationOr("VIBEVOTE_LOGIN_ERROR_DURATION", 2*time.Second),
		ToastDuration:       envDurationOr("VIBEVOTE_TOAST_DURATION", 2*time.Second),
		VideoPollInterval:   envDurationOr("VIBEVOTE_VIDEO_POLL_INTERVAL", 5*time.Second),
		VideoPollTimeout:    envDurationOr("VIBEVOTE_VIDEO_POLL_TIMEOUT", 0),
		EventsKeepalive:     envDurationOr("VIBEVOTE_EVENTS_KEEPALIVE", 15*time.Second),
		LiveMaxFrameBytes:   envIntOr("VIBEVOTE_LIVE_MAX_FRAME_BYTES", 32*1024),
		LiveMaxSessions:     envIntOr("VIBEVOTE_LIVE_MAX_SESSIONS", 100),
		LiveWSPingInterval:  envDurationOr("VIBEVOTE_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:  envDurationOr("VIBEVOTE_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveOutboundQueue:   envIntOr("VIBEVOTE_LIVE_OUTBOUND_QUEUE", 256),
		ReadHeaderTimeout:   envDurationOr("VIBEVOTE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VIBEVOTE_READ_TIMEOUT", 60*time.Second),
		HandlerTimeout:      envDurationOr("VIBEVOTE_HANDLER_TIMEOUT", 3*time.Minute),
		ShutdownGracePeriod: envDurationOr("VIBEVOTE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		CatalogFile:         envOr("VIBEVOTE_CATALOG_FILE", ""),
		GeminiAPIKey:        envOr("GEMINI_API_KEY", envOr("API_KEY", "")),
		GeminiBaseURL:       envOr("VIBEVOTE_GEMINI_BASE_URL", ""),
	}

	for _, origin := range splitCSV(os.Getenv("VIBEVOTE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if raw := envOr("VIBEVOTE_LOG_LEVEL", "info"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return Config{}, fmt.Errorf("VIBEVOTE_LOG_LEVEL must be one of debug|info|warn|error")
		}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_MAX_BODY_BYTES must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitRPS > 0 && cfg.LimitBurst < 1 {
		return Config{}, fmt.Errorf("VIBEVOTE_RATE_LIMIT_BURST must be >= 1 when rate limiting is enabled")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_SESSION_TTL must be > 0")
	}
	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_MAX_SESSIONS must be > 0")
	}
	if cfg.LoginDelay < 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LOGIN_DELAY must be >= 0")
	}
	if cfg.LoginErrorDuration <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LOGIN_ERROR_DURATION must be > 0")
	}
	if cfg.ToastDuration <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_TOAST_DURATION must be > 0")
	}
	if cfg.VideoPollInterval <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_VIDEO_POLL_INTERVAL must be > 0")
	}
	if cfg.VideoPollTimeout < 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_VIDEO_POLL_TIMEOUT must be >= 0")
	}
	if cfg.EventsKeepalive <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_EVENTS_KEEPALIVE must be > 0")
	}
	if cfg.LiveMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LIVE_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxSessions <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LIVE_MAX_SESSIONS must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveOutboundQueue <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_LIVE_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_HANDLER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VIBEVOTE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// Issues lists non-fatal configuration problems surfaced by readiness checks.
func (c Config) Issues() []string {
	var out []string
	if c.GeminiAPIKey == "" {
		out = append(out, "GEMINI_API_KEY is not set; AI panels will return configuration errors")
	}
	return out
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
