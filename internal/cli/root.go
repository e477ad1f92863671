package cli

import (
	"fmt"

	"github.com/harun/actionserver/internal/config"
	"github.com/harun/actionserver/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "0.1.0"

var (
	cfgFile string

	// settings collects flag bindings; config.Loader layers file and env
	// values underneath them.
	settings = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "actionserver",
	Short: "Action server - runs custom actions for a dialogue engine",
	Long: `actionserver runs custom actions on behalf of a dialogue engine.
The engine POSTs the tracker state to /webhook and receives the events and
responses produced by the requested action.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (json, yaml or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("logging-file", "", "also write logs to this file")
	flags.String("pid-file", "", "PID file path (default $HOME/.actionserver/actionserver.pid)")

	mustBind("logging.level", flags.Lookup("log-level"))
	mustBind("logging.file", flags.Lookup("logging-file"))
	mustBind("server.pid_file", flags.Lookup("pid-file"))

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

func mustBind(key string, flag *pflag.Flag) {
	if err := settings.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag for %s: %v", key, err))
	}
}

// loadConfig resolves the effective configuration and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile, settings).Load()
	if err != nil {
		return nil, err
	}
	if cfg.Server.PIDFile == "" {
		cfg.Server.PIDFile = config.DefaultPIDFile()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
	})
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
