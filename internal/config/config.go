package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Portals  PortalsConfig  `mapstructure:"portals"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Receipts ReceiptsConfig `mapstructure:"receipts"`
}

// LoggerConfig configures the zap logger and optional rotating file sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MigrateOnStart bool          `mapstructure:"migrate_on_start"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BrowserConfig controls the chromedp allocator and per-operation bounds.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	Args              []string      `mapstructure:"args"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
}

// PortalConfig holds per-portal connection details. Credentials live here so
// they can be supplied via PORTALS_* environment variables; the rest of the
// engine only sees them through the credentials provider.
type PortalConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// RatePerMinute bounds automation attempts against this portal.
	RatePerMinute int `mapstructure:"rate_per_minute"`
}

type PortalsConfig struct {
	Immigration        PortalConfig `mapstructure:"immigration"`
	Visa               PortalConfig `mapstructure:"visa"`
	RegistrationBureau PortalConfig `mapstructure:"registration_bureau"`
	EmploymentPermit   PortalConfig `mapstructure:"employment_permit"`
}

// ByType returns the config block for a portal type.
func (p PortalsConfig) ByType(t domain.PortalType) (PortalConfig, error) {
	switch t {
	case domain.PortalImmigration:
		return p.Immigration, nil
	case domain.PortalVisa:
		return p.Visa, nil
	case domain.PortalRegistrationBureau:
		return p.RegistrationBureau, nil
	case domain.PortalEmploymentPermit:
		return p.EmploymentPermit, nil
	}
	return PortalConfig{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedPortal, t)
}

type RetryConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	// ResumeScanLimit bounds how many persisted RETRY_SCHEDULED rows are
	// re-armed at startup.
	ResumeScanLimit int `mapstructure:"resume_scan_limit"`
}

type NotifierConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ReceiptsConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

// Load reads configuration from the given file (or ./config.yaml when empty)
// and the PORTALS_ environment, applies defaults, and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PORTALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "portal-engine")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.element_timeout", 10*time.Second)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)

	v.SetDefault("retry.base_delay", time.Minute)
	v.SetDefault("retry.max_attempts", domain.MaxRetryAttempts)
	v.SetDefault("retry.resume_scan_limit", 100)

	v.SetDefault("notifier.timeout", 10*time.Second)

	v.SetDefault("receipts.dir", "receipts")
	v.SetDefault("receipts.base_url", "file://receipts")

	for _, portal := range []string{"immigration", "visa", "registration_bureau", "employment_permit"} {
		v.SetDefault("portals."+portal+".rate_per_minute", 6)
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive, got %s", c.Retry.BaseDelay)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("browser.element_timeout must be positive, got %s", c.Browser.ElementTimeout)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be positive, got %s", c.Browser.NavigationTimeout)
	}
	switch c.Logger.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	return nil
}
