// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Explorer ExplorerConfig `mapstructure:"explorer" yaml:"explorer"`
	Popup    PopupConfig    `mapstructure:"popup" yaml:"popup"`
	Form     FormConfig     `mapstructure:"form" yaml:"form"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	Frontier FrontierConfig `mapstructure:"frontier" yaml:"frontier"`
	Results  ResultsConfig  `mapstructure:"results" yaml:"results"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserDriver selects the automation backend.
type BrowserDriver string

const (
	DriverChromedp BrowserDriver = "chromedp"
	DriverRod      BrowserDriver = "rod"
)

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Driver            BrowserDriver  `mapstructure:"driver" yaml:"driver"`
	BinaryPath        string         `mapstructure:"binary_path" yaml:"binary_path"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug             bool           `mapstructure:"debug" yaml:"debug"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ViewportSize returns the configured window size, defaulting to 1366x768.
func (b BrowserConfig) ViewportSize() (int, int) {
	width, height := b.Viewport["width"], b.Viewport["height"]
	if width <= 0 {
		width = 1366
	}
	if height <= 0 {
		height = 768
	}
	return width, height
}

// ExplorerConfig tunes the click/navigation orchestrator and the crawl loop.
type ExplorerConfig struct {
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	URLRecheckDelay    time.Duration `mapstructure:"url_recheck_delay" yaml:"url_recheck_delay"`
	PageTimeout        time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	MaxElementsPerPage int           `mapstructure:"max_elements_per_page" yaml:"max_elements_per_page"`
	OracleElementHints bool          `mapstructure:"oracle_element_hints" yaml:"oracle_element_hints"`
	ReturnToOrigin     bool          `mapstructure:"return_to_origin" yaml:"return_to_origin"`
	SubmitForms        bool          `mapstructure:"submit_forms" yaml:"submit_forms"`
}

// PopupConfig tunes the popup recovery state machine.
type PopupConfig struct {
	MaxDismissAttempts int           `mapstructure:"max_dismiss_attempts" yaml:"max_dismiss_attempts"`
	DismissWait        time.Duration `mapstructure:"dismiss_wait" yaml:"dismiss_wait"`
	StabilityTimeout   time.Duration `mapstructure:"stability_timeout" yaml:"stability_timeout"`
	StabilityInterval  time.Duration `mapstructure:"stability_interval" yaml:"stability_interval"`
}

// FormConfig tunes the form submission pipeline.
type FormConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	EssentialMin        int           `mapstructure:"essential_min" yaml:"essential_min"`
	EssentialMax        int           `mapstructure:"essential_max" yaml:"essential_max"`
	SubmitWait          time.Duration `mapstructure:"submit_wait" yaml:"submit_wait"`
	ScreenshotOnFailure bool          `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderStub      LLMProvider = "stub"
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// OracleConfig defines the model behind the oracle and how it is paced.
type OracleConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst       int           `mapstructure:"burst" yaml:"burst"`
}

// FrontierConfig scopes the crawl.
type FrontierConfig struct {
	MaxDepth           int      `mapstructure:"max_depth" yaml:"max_depth"`
	MaxPages           int      `mapstructure:"max_pages" yaml:"max_pages"`
	IncludeSubdomains  bool     `mapstructure:"include_subdomains" yaml:"include_subdomains"`
	ExcludedExtensions []string `mapstructure:"excluded_extensions" yaml:"excluded_extensions"`
}

// ResultsConfig selects where outcomes are written.
type ResultsConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DatabaseConfig holds the database connection details. An empty URL
// disables the Postgres sink.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-explore")
	v.SetDefault("logger.log_file", "scalpel-explore.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.driver", string(DriverChromedp))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 768})
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- Explorer --
	v.SetDefault("explorer.settle_delay", "500ms")
	v.SetDefault("explorer.url_recheck_delay", "300ms")
	v.SetDefault("explorer.page_timeout", "10m")
	v.SetDefault("explorer.max_elements_per_page", 0)
	v.SetDefault("explorer.oracle_element_hints", false)
	v.SetDefault("explorer.return_to_origin", true)
	v.SetDefault("explorer.submit_forms", true)

	// -- Popup --
	v.SetDefault("popup.max_dismiss_attempts", 3)
	v.SetDefault("popup.dismiss_wait", "300ms")
	v.SetDefault("popup.stability_timeout", "5s")
	v.SetDefault("popup.stability_interval", "250ms")

	// -- Form --
	v.SetDefault("form.max_attempts", 3)
	v.SetDefault("form.essential_min", 2)
	v.SetDefault("form.essential_max", 5)
	v.SetDefault("form.submit_wait", "1500ms")
	v.SetDefault("form.screenshot_on_failure", false)

	// -- Oracle --
	v.SetDefault("oracle.provider", string(ProviderStub))
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.api_timeout", "60s")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_tokens", 2048)
	v.SetDefault("oracle.max_retries", 2)
	v.SetDefault("oracle.rate_limit", 1.0)
	v.SetDefault("oracle.burst", 1)

	// -- Frontier --
	v.SetDefault("frontier.max_depth", 3)
	v.SetDefault("frontier.max_pages", 100)
	v.SetDefault("frontier.include_subdomains", false)
	v.SetDefault("frontier.excluded_extensions", []string{
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".css", ".js", ".map",
		".woff", ".woff2", ".ttf", ".pdf", ".zip", ".gz", ".mp4", ".mp3",
	})

	// -- Results --
	v.SetDefault("results.dir", "./results")
	v.SetDefault("results.format", "json")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("oracle.api_key", "SCALPEL_ORACLE_API_KEY")
	v.BindEnv("database.url", "SCALPEL_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in user supplied paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Results.Dir, &c.Logger.LogFile, &c.Browser.BinaryPath} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case DriverChromedp, DriverRod:
	default:
		return fmt.Errorf("browser.driver must be one of [%s, %s], got %q", DriverChromedp, DriverRod, c.Browser.Driver)
	}
	if c.Explorer.MaxElementsPerPage < 0 {
		return fmt.Errorf("explorer.max_elements_per_page must not be negative")
	}
	if c.Frontier.MaxDepth < 0 {
		return fmt.Errorf("frontier.max_depth must not be negative")
	}
	if c.Popup.MaxDismissAttempts <= 0 {
		return fmt.Errorf("popup.max_dismiss_attempts must be a positive integer")
	}
	if err := c.Form.Validate(); err != nil {
		return fmt.Errorf("form configuration invalid: %w", err)
	}
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	switch c.Results.Format {
	case "json", "csv":
	default:
		return fmt.Errorf("results.format must be json or csv, got %q", c.Results.Format)
	}
	return nil
}

// Validate checks the form pipeline settings.
func (f *FormConfig) Validate() error {
	if f.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if f.EssentialMin <= 0 || f.EssentialMax < f.EssentialMin {
		return fmt.Errorf("essential_min must be positive and not exceed essential_max")
	}
	return nil
}

// Validate checks the oracle settings.
func (o *OracleConfig) Validate() error {
	switch o.Provider {
	case ProviderStub:
		return nil
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", o.Provider)
	}
	if o.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q. Ensure SCALPEL_ORACLE_API_KEY is set", o.Provider)
	}
	if o.Model == "" {
		return fmt.Errorf("model is required for provider %q", o.Provider)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if o.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	return nil
}
