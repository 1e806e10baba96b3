package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables consulted when the key or project id is not set by
// file or flag.
const (
	EnvAPIKey    = "PERFMASTER_API_KEY"
	EnvProjectID = "PERFMASTER_PROJECT_ID"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l *Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.FromFlags(flagSet)
}

// FromFlags builds a Config from an already parsed flag set, such as the one
// owned by a cobra command.
func (l *Loader) FromFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := cfgViper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", configPath, err)
		}
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	l.applyEnvFallbacks(cfg)

	cfg.Environment = Environment(strings.ToLower(strings.TrimSpace(string(cfg.Environment))))
	if cfg.Environment == "" {
		cfg.Environment = EnvironmentProduction
	}
	return cfg, nil
}

func (l *Loader) applyEnvFallbacks(cfg *Config) {
	lookup := l.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if cfg.APIKey == "" {
		if v, ok := lookup(EnvAPIKey); ok {
			cfg.APIKey = strings.TrimSpace(v)
		}
	}
	if cfg.ProjectID == "" {
		if v, ok := lookup(EnvProjectID); ok {
			cfg.ProjectID = strings.TrimSpace(v)
		}
	}
}
