// Package config loads narr settings from defaults, an optional YAML file,
// an optional .env file and NARR_ environment variables, in increasing order
// of precedence.
package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/metcalfc/narr/internal/state"
	"github.com/pkg/errors"
)

const (
	envPrefix = "NARR_"
	// ConfigFileEnv names a config file when no path is given.
	ConfigFileEnv = "NARR_CONFIG"
)

// Store types.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StorePebble = "pebble"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Synthesizer kinds.
const (
	SynthCommand = "command"
	SynthSilent  = "silent"
)

type Config struct {
	DataDir   string    `koanf:"data_dir" validate:"required"`
	Log       Log       `koanf:"log"`
	Store     Store     `koanf:"store"`
	Import    Import    `koanf:"import"`
	Narration Narration `koanf:"narration"`
}

type Log struct {
	Level string `koanf:"level" default:"info" validate:"oneof=debug info warn error"`
	// File defaults to narr.log in the data directory.
	File       string `koanf:"file"`
	Console    bool   `koanf:"console" default:"true"`
	MaxSizeMB  int    `koanf:"max_size_mb" default:"10" validate:"min=1"`
	MaxBackups int    `koanf:"max_backups" default:"3" validate:"min=0"`
	MaxAgeDays int    `koanf:"max_age_days" default:"28" validate:"min=0"`
}

type Store struct {
	Type string `koanf:"type" default:"file" validate:"oneof=file sqlite pebble redis memory"`
	// Path overrides the location derived from the data directory.
	Path  string `koanf:"path"`
	Redis Redis  `koanf:"redis"`
}

type Redis struct {
	Addr     string `koanf:"addr" default:"127.0.0.1:6379" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
	Prefix   string `koanf:"prefix" default:"narr:"`
}

type Import struct {
	Workers int `koanf:"workers" default:"4" validate:"min=1,max=64"`
}

type Narration struct {
	Synth string `koanf:"synth" default:"command" validate:"oneof=command silent"`
	// Command is the speech program; empty picks the first one installed.
	Command         string        `koanf:"command"`
	Voice           string        `koanf:"voice"`
	Rate            int           `koanf:"rate" validate:"min=0,max=1500"`
	Pitch           int           `koanf:"pitch" validate:"min=0,max=99"`
	MaxTextLength   int           `koanf:"max_text_length" default:"4000" validate:"min=0"`
	Watchdog        time.Duration `koanf:"watchdog" default:"30s" validate:"min=1s"`
	PersistInterval time.Duration `koanf:"persist_interval" default:"2s" validate:"min=10ms"`
	// SilentWPM paces the silent synthesizer.
	SilentWPM int `koanf:"silent_wpm" default:"300" validate:"min=50,max=1500"`
}

// DefaultPath is where Load looks for a config file when none is named.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "narr", "config.yaml")
}

// Load builds the configuration. An explicit path must exist; the default
// path is optional.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigFileEnv)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, errors.Wrapf(err, "load config %s", path)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if cfg.DataDir == "" {
		cfg.DataDir = state.DefaultDir()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "load %s", path)
}

// envKey maps NARR_STORE__TYPE to store.type.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg against its constraints, naming offending keys the way
// they are written in the config file.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		msg := key + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// LogFile is the log file location, narr.log in the data directory unless
// configured.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "narr.log")
}

// StorePath is where the configured backend keeps its data. Redis and memory
// stores have none.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.Store.Type {
	case StoreFile:
		return c.DataDir
	case StoreSQLite:
		return filepath.Join(c.DataDir, "library.db")
	case StorePebble:
		return filepath.Join(c.DataDir, "library.pebble")
	}
	return ""
}
