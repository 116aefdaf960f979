// ABOUTME: Capture client configuration
// ABOUTME: Merges flags, RESONATE_* environment variables and an optional YAML file
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/Resonate-Protocol/resonate-capture/pkg/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "RESONATE"

// ErrInvalidConfig is returned when a loaded value is out of range
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Backend  string `mapstructure:"backend"`
	Target   string `mapstructure:"target"`
	Rate     uint32 `mapstructure:"rate"`
	Channels uint32 `mapstructure:"channels"`
	NoTUI    bool   `mapstructure:"no_tui"`
	LogFile  string `mapstructure:"log_file"`
	FeedAddr string `mapstructure:"feed_addr"`
	MDNS     bool   `mapstructure:"mdns"`
	Name     string `mapstructure:"name"`
}

func Default() *Config {
	return &Config{
		Backend: "malgo",
		LogFile: "resonate-capture.log",
	}
}

// AddFlags registers the configuration flags on cmd
func AddFlags(cmd *cobra.Command) {
	d := Default()
	flags := cmd.Flags()
	flags.String("backend", d.Backend, fmt.Sprintf("Capture backend (%s)", strings.Join(transport.Backends, "|")))
	flags.Uint32("rate", 0, "Request a sample rate (0 = graph's choice)")
	flags.Uint32("channels", 0, "Request a channel count (0 = graph's choice)")
	flags.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	flags.String("log-file", d.LogFile, "Log file path")
	flags.String("feed-addr", "", "Serve the level feed on this address (e.g. :8928)")
	flags.Bool("mdns", false, "Advertise the level feed via mDNS")
	flags.String("name", "", "Capture name (default: hostname-resonate-capture)")
	cmd.PersistentFlags().StringP("config", "c", "", "Config file path")
}

// Load merges the configuration. Precedence is flags, then environment,
// then the config file, then defaults. A missing default config file is
// not an error; a missing explicit one is.
func Load(cmd *cobra.Command, cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("log_file", cfg.LogFile)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("resonate-capture")
		v.SetConfigType("yaml")
		if dir := configDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for _, name := range []string{"backend", "rate", "channels", "no-tui", "log-file", "feed-addr", "mdns", "name"} {
			if flag := cmd.Flags().Lookup(name); flag != nil {
				if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if !slices.Contains(transport.Backends, c.Backend) {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Channels > spa.MaxChannels {
		return fmt.Errorf("%w: channels %d exceeds %d", ErrInvalidConfig, c.Channels, spa.MaxChannels)
	}
	if c.MDNS && c.FeedAddr == "" {
		return fmt.Errorf("%w: mdns requires a feed address", ErrInvalidConfig)
	}
	return nil
}

// DisplayName returns Name, or a name derived from the hostname
func (c *Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-resonate-capture", hostname)
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "resonate")
}
