package confloader

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix for config keys.
const DefaultEnvPrefix = "REDISTILL_"

// ConfigPathEnv selects the configuration file when no flag is given.
const ConfigPathEnv = "REDISTILL_CONFIG"

// legacyEnvAliases maps Redis-convention environment variables onto
// their config keys. They take precedence over everything else so that
// deployments driven by container env vars keep working.
var legacyEnvAliases = map[string]string{
	"REDIS_PASSWORD": "security.password",
	"REDIS_PORT":     "server.port",
	"REDIS_BIND":     "server.bind",
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// NewLoader creates a configuration loader. When no config file is
// given explicitly, the path in $REDISTILL_CONFIG is used if set.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.filePath == "" {
		l.filePath = os.Getenv(ConfigPathEnv)
	}
	return l
}

// Load merges all sources and unmarshals into target. Later sources
// override earlier ones:
//
//  1. Default values already present in target
//  2. YAML configuration file
//  3. REDISTILL_* environment variables
//  4. Legacy REDIS_PASSWORD / REDIS_PORT / REDIS_BIND aliases
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.loadFile(l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.loadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if err := l.loadLegacyAliases(); err != nil {
		return fmt.Errorf("load legacy env aliases: %w", err)
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// FilePath returns the configuration file path in effect, if any.
func (l *Loader) FilePath() string { return l.filePath }

func (l *Loader) loadFile(path string) error {
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// loadEnv maps REDISTILL_SECTION_KEY to section.key. Multi-word keys
// keep their underscore: REDISTILL_SERVER_MAX_CONNECTIONS maps to
// server.max_connections because only the first underscore separates
// the section.
func (l *Loader) loadEnv() error {
	transform := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		// First segment is the section, the rest is the key.
		return strings.Replace(s, "_", ".", 1)
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

func (l *Loader) loadLegacyAliases() error {
	overrides := map[string]any{}
	for envName, key := range legacyEnvAliases {
		if v, ok := os.LookupEnv(envName); ok && v != "" {
			overrides[key] = v
		}
	}
	if len(overrides) == 0 {
		return nil
	}
	if err := l.k.Load(mapProvider(overrides), nil); err != nil {
		return fmt.Errorf("load aliases: %w", err)
	}
	return nil
}

// Get returns a raw value by key (used by tests and diagnostics).
func (l *Loader) Get(key string) any { return l.k.Get(key) }
