package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from, in order of
// precedence: command-line flags, the TOML config file, built-in defaults.
type Config struct {
	DBPath          string        `mapstructure:"db-path"`
	LogPath         string        `mapstructure:"log-path"`
	PrefsPath       string        `mapstructure:"prefs-path"`
	PaceSecPerKm    uint          `mapstructure:"pace-sec-per-km"`
	CaptureInterval time.Duration `mapstructure:"capture-interval"`
	ConnectTimeout  time.Duration `mapstructure:"connect-timeout"`
	Mock            bool          `mapstructure:"mock"`
	Debug           bool          `mapstructure:"debug"`
}

// DefaultDir is the per-user directory holding the config file, the sample
// database, the rotating log, and the preferred-device file.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cadence-coach"
	}
	return filepath.Join(home, ".cadence-coach")
}

// Load parses flags from args (excluding the program name) and merges them
// with the config file. Pass os.Args[1:] in production.
func Load(args []string) (*Config, error) {
	dir := DefaultDir()

	flags := pflag.NewFlagSet("cadence-coach", pflag.ContinueOnError)
	flags.String("db-path", filepath.Join(dir, "samples.db"), "Path to the sample database")
	flags.String("log-path", filepath.Join(dir, "cadence-coach.log"), "Path to the log file")
	flags.String("prefs-path", filepath.Join(dir, "preferences.json"), "Path to the preferred-device file")
	flags.Uint("pace-sec-per-km", 0, "Assumed running pace in seconds per km (0 = built-in default)")
	flags.Duration("capture-interval", 5*time.Second, "Interval between automatic sample captures")
	flags.Duration("connect-timeout", 10*time.Second, "How long to wait for a sensor connection")
	flags.Bool("mock", false, "Use simulated sensors instead of real Bluetooth hardware")
	flags.Bool("debug", false, "Enable debug logging")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}
