// Package config loads scriptbox settings from defaults, an optional YAML
// file and SCRIPTBOX_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/caffeineduck/scriptbox/internal/logger"
)

const EnvPrefix = "SCRIPTBOX"

type Config struct {
	Log    logger.LogConfig `mapstructure:"log" yaml:"log"`
	Engine EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Server ServerConfig     `mapstructure:"server" yaml:"server"`
}

type EngineConfig struct {
	// BaseDir is where library references are looked up. Empty means the
	// current directory.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// CodeDir is the artifact cache directory, relative to the current
	// directory unless absolute.
	CodeDir         string        `mapstructure:"code_dir" yaml:"code_dir"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Assembly        string        `mapstructure:"assembly" yaml:"assembly"`
	LanguageVersion string        `mapstructure:"language_version" yaml:"language_version"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// SetDefaults registers every key so environment overrides apply to it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("engine.base_dir", "")
	v.SetDefault("engine.code_dir", "code")
	v.SetDefault("engine.timeout", time.Duration(0))
	v.SetDefault("engine.assembly", "")
	v.SetDefault("engine.language_version", "")

	v.SetDefault("server.port", 8080)
}

// Load reads the configuration. A missing file at path is not an error;
// an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
