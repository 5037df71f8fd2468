package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"datasync/internal/config"
	"datasync/internal/ui"
	apperrors "datasync/pkg/errors"
)

// envPrefix namespaces every setting read from the environment.
const envPrefix = "DATASYNC"

var (
	cfgFile     string
	noColor     bool
	settingsErr error

	rootCmd = &cobra.Command{
		Use:   "datasync",
		Short: "Keep a local data directory in sync with a GitHub repository",
		Long: `DataSync keeps a working directory in sync with a remote git repository.

Run 'datasync serve' to expose the HTTP API and the auto-sync schedule, or
use the one-shot commands (status, init, push, pull, force-local,
force-remote, undo) from a terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				ui.SetColor(false)
				color.NoColor = true
			}
		},
	}
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSyncFailed) {
			apperrors.Display(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "settings file (default ./datasync.yaml or ~/.datasync/datasync.yaml)")
	flags.String("data-dir", "./data", "working directory kept in sync")
	flags.String("state-file", "", "sync record path (default ~/.datasync/config.yaml, env "+config.EnvConfigFile+")")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "write logs to a rotated file instead of stderr")
	flags.String("log-format", "json", "log format: json or console")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")

	bindFlags(flags, "data-dir", "state-file", "log-level", "log-file", "log-format")
}

func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("datasync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".datasync"))
		}
	}

	settingsErr = nil
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			settingsErr = err
		}
	}
}

// settings is the resolved process configuration.
type settings struct {
	DataDir   string
	StateFile string
	LogLevel  string
	LogFile   string
	LogFormat string
}

func loadSettings() (settings, error) {
	if settingsErr != nil {
		return settings{}, apperrors.Wrap(settingsErr, apperrors.ErrCodeConfigInvalid, "Failed to read settings file").
			WithContext("file", viper.ConfigFileUsed()).
			WithSuggestions("Check the YAML syntax of the settings file")
	}

	s := settings{
		DataDir:   viper.GetString("data-dir"),
		StateFile: viper.GetString("state-file"),
		LogLevel:  viper.GetString("log-level"),
		LogFile:   viper.GetString("log-file"),
		LogFormat: viper.GetString("log-format"),
	}
	if strings.TrimSpace(s.DataDir) == "" {
		return settings{}, apperrors.ConfigError("data directory is not set", "data-dir")
	}
	if s.StateFile == "" {
		s.StateFile = config.GetConfigFile()
	}
	return s, nil
}
