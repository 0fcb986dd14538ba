package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SurfaceMemory  = "memory"
	SurfaceBrowser = "browser"
)

// Config holds configuration for the chart service.
type Config struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string

	// Surface selects the render backend: memory or browser.
	Surface       string
	SurfaceWidth  int
	SurfaceHeight int
	TickInterval  time.Duration

	JournalDir       string
	JournalMaxSizeMB int
	SnapshotDir      string
	StyleFile        string
	// NotifyURL receives a text POST per confirmed order. Empty disables it.
	NotifyURL string

	CDPAddress      string
	CDPPort         int
	ProfileDir      string
	LaunchBrowser   bool
	BrowserHeadless bool
	EvalTimeoutMS   int
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("CHARTD_BIND_ADDR", "127.0.0.1:8188"),
		PortCandidates:   getEnvListOrDefault("CHARTD_PORT_CANDIDATES", []string{"127.0.0.1:8189", "127.0.0.1:8190", "127.0.0.1:8191"}),
		PortAutoFallback: getEnvBoolOrDefault("CHARTD_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("CHARTD_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CHARTD_LOG_FILE", "logs/chartd.log"),
		Surface:          strings.ToLower(getEnvOrDefault("CHARTD_SURFACE", SurfaceMemory)),
		SurfaceWidth:     getEnvIntOrDefault("CHARTD_SURFACE_WIDTH", 1200),
		SurfaceHeight:    getEnvIntOrDefault("CHARTD_SURFACE_HEIGHT", 600),
		TickInterval:     getEnvDurationOrDefault("CHARTD_TICK_INTERVAL", 3*time.Second),
		JournalDir:       getEnvOrDefault("CHARTD_JOURNAL_DIR", "./journal"),
		JournalMaxSizeMB: getEnvIntOrDefault("CHARTD_JOURNAL_MAX_SIZE_MB", 50),
		SnapshotDir:      getEnvOrDefault("CHARTD_SNAPSHOT_DIR", "./snapshots"),
		StyleFile:        getEnvOrDefault("CHARTD_STYLE_FILE", ""),
		NotifyURL:        getEnvOrDefault("CHARTD_NOTIFY_URL", ""),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		ProfileDir:       getEnvOrDefault("CHROMIUM_PROFILE_DIR", "./browser_profile"),
		LaunchBrowser:    getEnvBoolOrDefault("CHROMIUM_LAUNCH", true),
		BrowserHeadless:  getEnvBoolOrDefault("CHROMIUM_HEADLESS", true),
		EvalTimeoutMS:    getEnvIntOrDefault("CHARTD_EVAL_TIMEOUT_MS", 5000),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.TickInterval < 100*time.Millisecond {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Surface {
	case SurfaceMemory, SurfaceBrowser:
	default:
		return fmt.Errorf("CHARTD_SURFACE must be %q or %q, got %q", SurfaceMemory, SurfaceBrowser, c.Surface)
	}
	if c.SurfaceWidth < 0 || c.SurfaceHeight < 0 {
		return fmt.Errorf("surface size must not be negative: %dx%d", c.SurfaceWidth, c.SurfaceHeight)
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint of the surface browser.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// EvalTimeout is EvalTimeoutMS as a duration.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
