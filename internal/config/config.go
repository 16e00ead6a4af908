package config

import (
	"fmt"
	"net"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"DE_ENV" default:"development"`

	HTTPPort    int           `envconfig:"DE_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"DE_HTTP_TIMEOUT" default:"15s"`

	MaxConcurrentDownloads int           `envconfig:"DE_MAX_CONCURRENT_DOWNLOADS" default:"3"`
	MaxQueueSize           int           `envconfig:"DE_MAX_QUEUE_SIZE" default:"100"`
	MaxRetries             int           `envconfig:"DE_MAX_RETRIES" default:"3"`
	AllowCellular          bool          `envconfig:"DE_ALLOW_CELLULAR" default:"true"`
	MinFreeDiskSpace       uint64        `envconfig:"DE_MIN_FREE_DISK_SPACE" default:"104857600"`
	SchedulerInterval      time.Duration `envconfig:"DE_SCHEDULER_INTERVAL" default:"500ms"`
	DownloadTimeout        time.Duration `envconfig:"DE_DOWNLOAD_TIMEOUT" default:"30m"`

	DownloadDir string `envconfig:"DE_DOWNLOAD_DIR" default:"./storage"`
	TempDir     string `envconfig:"DE_TEMP_DIR" default:"./tmp"`
	StateFile   string `envconfig:"DE_STATE_FILE" default:"./state.json"`

	ConnProbeAddr     string        `envconfig:"DE_CONN_PROBE_ADDR" default:"1.1.1.1:443"`
	ConnProbeInterval time.Duration `envconfig:"DE_CONN_PROBE_INTERVAL" default:"10s"`

	ShutdownTimeout time.Duration `envconfig:"DE_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"DE_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"DE_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max concurrent downloads must be positive: %d", c.MaxConcurrentDownloads)
	}

	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max queue size must be positive: %d", c.MaxQueueSize)
	}

	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive: %s", c.SchedulerInterval)
	}

	if c.DownloadTimeout <= 0 {
		return fmt.Errorf("download timeout must be positive: %s", c.DownloadTimeout)
	}

	if c.ConnProbeInterval <= 0 {
		return fmt.Errorf("connectivity probe interval must be positive: %s", c.ConnProbeInterval)
	}
	if _, _, err := net.SplitHostPort(c.ConnProbeAddr); err != nil {
		return fmt.Errorf("connectivity probe address must be host:port, got %q: %w", c.ConnProbeAddr, err)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.TempDir == "" {
		return fmt.Errorf("temp directory cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	return nil
}
