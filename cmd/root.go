// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/observability"
)

// app carries the state shared by the root command and its children.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newApp() *app {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)
	return a
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scalpel-explore",
		Short:         "Scalpel Explore drives a browser through every interactive element of a web app.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	rootCmd.SetVersionTemplate(versionTemplate)

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console, json)")
	mustBind(a.v, "logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBind(a.v, "logger.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(newExploreCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with a signal aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Exploration interrupted.")
		return err
	}
	if logger := observability.GetLogger(); logger != nil {
		logger.Error("Command execution failed.", zap.Error(err))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// initialize reads the config file and environment, validates the result
// and starts the global logger.
func (a *app) initialize(cmd *cobra.Command) error {
	if err := readConfig(a.v, a.cfgFile); err != nil {
		initFallbackLogger()
		return err
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		initFallbackLogger()
		return err
	}
	if a.verbose {
		cfg.Logger.Level = "debug"
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	observability.GetLogger().Debug("Configuration loaded.",
		zap.String("command", cmd.Name()),
		zap.String("version", Version),
		zap.String("config_file", a.v.ConfigFileUsed()))
	return nil
}

// initFallbackLogger starts a console only logger when the configuration
// could not be loaded.
func initFallbackLogger() {
	cfg := config.NewDefaultConfig().Logger
	cfg.LogFile = ""
	observability.InitializeLogger(cfg)
}

// readConfig loads an explicit config file, or ./config.yaml when present,
// and layers SCALPEL_ prefixed environment variables on top.
func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SCALPEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
