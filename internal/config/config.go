// Package config loads chatflow settings from defaults, an optional TOML file
// and CHATFLOW_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. CHATFLOW_SERVER_ADDR.
const EnvPrefix = "CHATFLOW_"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Addr string `koanf:"addr"`
	} `koanf:"server"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	Store struct {
		Driver string `koanf:"driver"`
		Redis  struct {
			Addr     string `koanf:"addr"`
			Password string `koanf:"password"`
			DB       int    `koanf:"db"`
			Prefix   string `koanf:"prefix"`
		} `koanf:"redis"`
		File struct {
			Dir string `koanf:"dir"`
		} `koanf:"file"`
	} `koanf:"store"`

	Session struct {
		Retention    time.Duration `koanf:"retention"`
		MaxInputSize int           `koanf:"max_input_size"`
		// EncryptionKey is a base64 AES-256 key. When set, session contents
		// are encrypted at rest; FallbackKeys are tried on read for rotation.
		EncryptionKey string   `koanf:"encryption_key"`
		FallbackKeys  []string `koanf:"fallback_keys"`
	} `koanf:"session"`

	Engine struct {
		StepBudget    int           `koanf:"step_budget"`
		APITimeout    time.Duration `koanf:"api_timeout"`
		APIMaxTimeout time.Duration `koanf:"api_max_timeout"`
	} `koanf:"engine"`

	Flows struct {
		Dir string `koanf:"dir"`
	} `koanf:"flows"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":            ":8080",
		"log.level":              "info",
		"log.format":             "text",
		"store.driver":           DriverMemory,
		"store.redis.addr":       "localhost:6379",
		"store.redis.password":   "",
		"store.redis.db":         0,
		"store.redis.prefix":     "chatflow:",
		"store.file.dir":         ".chatflow/sessions",
		"session.retention":      "720h",
		"session.max_input_size": 4096,
		"session.encryption_key": "",
		"session.fallback_keys":  []string{},
		"engine.step_budget":     1000,
		"engine.api_timeout":     "10s",
		"engine.api_max_timeout": "60s",
		"flows.dir":              "",
	}
}

// DefaultPaths are tried in order when Load is called without a path.
var DefaultPaths = []string{"./chatflow.toml", "$HOME/.chatflow.toml"}

// Load reads the configuration. An explicit path must exist; otherwise the
// first readable file of DefaultPaths is used, if any.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", path, err)
		}
	} else {
		for _, p := range DefaultPaths {
			p = os.ExpandEnv(p)
			if _, err := os.Stat(p); err == nil {
				if err := k.Load(file.Provider(p), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey(k.Keys())), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// envKey maps CHATFLOW_SESSION_MAX_INPUT_SIZE to session.max_input_size.
// Keys contain underscores, so names are resolved against the known keys
// instead of splitting on every underscore. Unknown variables are ignored.
func envKey(known []string) func(string) string {
	byEnv := make(map[string]string, len(known))
	for _, k := range known {
		byEnv[EnvPrefix+strings.ToUpper(strings.ReplaceAll(k, ".", "_"))] = k
	}
	return func(s string) string {
		return byEnv[s]
	}
}

// Validate reports configuration values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory, DriverFile:
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverFile && c.Store.File.Dir == "" {
		errs = append(errs, errors.New("store.file.dir is required for the file driver"))
	}
	if c.Session.Retention <= 0 {
		errs = append(errs, errors.New("session.retention must be positive"))
	}
	if c.Session.MaxInputSize < 0 {
		errs = append(errs, errors.New("session.max_input_size must not be negative"))
	}
	if c.Session.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Session.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("session.encryption_key: %w", err))
		}
	} else if len(c.Session.FallbackKeys) > 0 {
		errs = append(errs, errors.New("session.fallback_keys requires session.encryption_key"))
	}
	for i, k := range c.Session.FallbackKeys {
		if _, err := middleware.ParseKey(k); err != nil {
			errs = append(errs, fmt.Errorf("session.fallback_keys[%d]: %w", i, err))
		}
	}
	if c.Engine.StepBudget <= 0 {
		errs = append(errs, errors.New("engine.step_budget must be positive"))
	}
	if c.Engine.APITimeout <= 0 || c.Engine.APIMaxTimeout <= 0 {
		errs = append(errs, errors.New("engine api timeouts must be positive"))
	} else if c.Engine.APITimeout > c.Engine.APIMaxTimeout {
		errs = append(errs, errors.New("engine.api_timeout must not exceed engine.api_max_timeout"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

const sample = `# chatflow configuration

[server]
addr = ":8080"

[log]
level = "info"   # debug, info, warn, error
format = "text"  # text or json

[store]
driver = "memory" # memory, redis or file

[store.redis]
addr = "localhost:6379"
prefix = "chatflow:"

[store.file]
dir = ".chatflow/sessions"

[session]
retention = "720h"
max_input_size = 4096
# encryption_key = ""  # base64 AES-256 key; encrypts sessions at rest
# fallback_keys = []   # previous keys, tried on read

[engine]
step_budget = 1000
api_timeout = "10s"
api_max_timeout = "60s"

[flows]
# dir = "./flows"
`

// Init writes a sample configuration file. It refuses to overwrite.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}
	return os.WriteFile(path, []byte(sample), 0o644)
}
