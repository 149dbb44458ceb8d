package config

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mrz1836/cutover/internal/errors"
)

// EnvPrefix is the environment variable prefix (CUTOVER_ROLLOUT_DWELL etc.).
const EnvPrefix = "CUTOVER"

// newViperInstance creates a viper instance with defaults, the CUTOVER_ env
// prefix and a key replacer mapping "." to "_".
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr) || os.IsNotExist(err)
}

// viperDecoderOption decodes durations ("30s") and comma separated lists
// ("1,5,25,100" from CUTOVER_ROLLOUT_STAGES).
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to unmarshal config"), errors.ErrValidation)
	}
	if cfg.Services == nil {
		cfg.Services = map[string]ServiceConfig{}
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all sources with the documented precedence.
// When explicitPath is non-empty it replaces the project config and must exist.
// Missing global or project files are not errors.
func Load(ctx context.Context, explicitPath string) (*Config, error) {
	v := newViperInstance()

	if globalPath, err := GlobalConfigPath(); err == nil && fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrap(err, "failed to read global config file")
		}
	}

	projectPath := ProjectConfigPath()
	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return nil, errors.Wrapf(errors.ErrValidation, "config file %s does not exist", explicitPath)
		}
		projectPath = explicitPath
	}
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrapf(err, "failed to read config file %s", projectPath)
		}
	}

	cfg, err := unmarshalAndValidate(v)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("component", "config").
		Ints("rollout.stages", cfg.Rollout.Stages).
		Dur("rollout.dwell", cfg.Rollout.Dwell).
		Str("orchestration.backend", cfg.Orchestration.Backend).
		Str("lease.backend", cfg.Lease.Backend).
		Int("services", len(cfg.Services)).
		Msg("configuration loaded")

	return cfg, nil
}

// LoadFromPaths loads configuration from specific files, for tests.
// Either path may be empty to skip that layer.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
