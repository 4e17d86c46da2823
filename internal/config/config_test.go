// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1366, cfg.Browser.Viewport["width"])
	assert.Equal(t, 500*time.Millisecond, cfg.Explorer.SettleDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.Explorer.URLRecheckDelay)
	assert.Equal(t, 0, cfg.Explorer.MaxElementsPerPage, "every element is probed unless overridden")
	assert.True(t, cfg.Explorer.ReturnToOrigin)
	assert.Equal(t, 3, cfg.Popup.MaxDismissAttempts)
	assert.Equal(t, 3, cfg.Form.MaxAttempts)
	assert.Equal(t, 2, cfg.Form.EssentialMin)
	assert.Equal(t, 5, cfg.Form.EssentialMax)
	assert.Equal(t, ProviderStub, cfg.Oracle.Provider)
	assert.Equal(t, 2, cfg.Oracle.MaxRetries)
	assert.Equal(t, "json", cfg.Results.Format)
	assert.Contains(t, cfg.Frontier.ExcludedExtensions, ".png")

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }, "browser.driver must be one of"},
		{"negative element cap", func(c *Config) { c.Explorer.MaxElementsPerPage = -1 }, "explorer.max_elements_per_page"},
		{"negative depth", func(c *Config) { c.Frontier.MaxDepth = -1 }, "frontier.max_depth"},
		{"no dismiss attempts", func(c *Config) { c.Popup.MaxDismissAttempts = 0 }, "popup.max_dismiss_attempts"},
		{"no form attempts", func(c *Config) { c.Form.MaxAttempts = 0 }, "max_attempts must be a positive integer"},
		{"inverted essential bounds", func(c *Config) { c.Form.EssentialMin = 6 }, "essential_min"},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "palm" }, "unknown provider"},
		{"provider without key", func(c *Config) { c.Oracle.Provider = ProviderOpenAI }, "api_key is required"},
		{"bad format", func(c *Config) { c.Results.Format = "xml" }, "results.format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("provider with key", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Oracle.Provider = ProviderAnthropic
		cfg.Oracle.APIKey = "sk-test"
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  driver: rod
explorer:
  settle_delay: 1s
  oracle_element_hints: true
form:
  screenshot_on_failure: true
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, DriverRod, cfg.Browser.Driver)
		assert.Equal(t, time.Second, cfg.Explorer.SettleDelay)
		assert.True(t, cfg.Explorer.OracleElementHints)
		assert.True(t, cfg.Form.ScreenshotOnFailure)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("form.max_attempts", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
oracle:
  provider: gemini
database:
  url: "postgres://configfile/db"
`)))

		t.Setenv("SCALPEL_ORACLE_API_KEY", "env-key")
		t.Setenv("SCALPEL_DATABASE_URL", "postgres://envvar/db")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "env-key", cfg.Oracle.APIKey)
		assert.Equal(t, "postgres://envvar/db", cfg.Database.URL, "env must override the config file")
	})

	t.Run("Home Expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		if err != nil {
			t.Skip("no home directory available")
		}
		v := viper.New()
		SetDefaults(v)
		v.Set("results.dir", "~/scalpel-out")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "scalpel-out"), cfg.Results.Dir)
	})
}
