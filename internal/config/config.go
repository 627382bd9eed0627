package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig      *AppConfig
	BrowserConfig  *BrowserConfig
	SiteConfig     *SiteConfig
	ChatConfig     *ChatConfig
	DatabaseConfig *DatabaseConfig
	ServerConfig   *ServerConfig
}

type AppConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool   `envconfig:"DEBUG" default:"false"`
	LogFile        string `envconfig:"LOG_FILE"`
	LogMaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	LogMaxAgeDays  int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"false"`
}

type BrowserConfig struct {
	BrowserlessURL   string `envconfig:"BROWSERLESS_URL" default:"ws://localhost:3000"`
	BrowserlessToken string `envconfig:"BROWSERLESS_TOKEN"`
	SessionID        string `envconfig:"BROWSER_SESSION_ID" default:"deepseek-persistent-session"`
	Headless         bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	Timeout          int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	UserAgent        string `envconfig:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	SessionDir       string `envconfig:"BROWSER_SESSION_DIR" default:"sessions"`
	CookiesFile      string `envconfig:"BROWSER_COOKIES_FILE"`
}

type SiteConfig struct {
	BaseURL  string `envconfig:"BASE_URL" default:"https://chat.deepseek.com"`
	Name     string `envconfig:"SITE_NAME" default:"deepseek"`
	User     string `envconfig:"SITE_USER"`
	Password string `envconfig:"SITE_PASSWORD"`
}

type ChatConfig struct {
	MaxConcurrency  int           `envconfig:"MAX_CONCURRENCY" default:"5"`
	ResponseTimeout time.Duration `envconfig:"CHAT_RESPONSE_TIMEOUT" default:"120s"`
	StabilityCheck  bool          `envconfig:"CHAT_STABILITY_CHECK" default:"true"`
	PollInterval    time.Duration `envconfig:"CHAT_POLL_INTERVAL" default:"1s"`
	GracePeriod     time.Duration `envconfig:"CHAT_GRACE_PERIOD" default:"2s"`
	ProbeTimeout    time.Duration `envconfig:"CHAT_PROBE_TIMEOUT" default:"2s"`
	TypeDelay       time.Duration `envconfig:"CHAT_TYPE_DELAY" default:"50ms"`
}

type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL" required:"true"`
	MaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	Migrate  bool   `envconfig:"DATABASE_MIGRATE" default:"true"`
}

type ServerConfig struct {
	Addr         string        `envconfig:"HTTP_ADDR" default:":8000"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"180s"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	if conf.ChatConfig.MaxConcurrency < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", conf.ChatConfig.MaxConcurrency)
	}

	if conf.ServerConfig.WriteTimeout <= conf.ChatConfig.ResponseTimeout {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT (%s) must exceed CHAT_RESPONSE_TIMEOUT (%s)",
			conf.ServerConfig.WriteTimeout, conf.ChatConfig.ResponseTimeout)
	}

	return &conf, nil
}
