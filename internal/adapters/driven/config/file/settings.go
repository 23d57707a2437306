package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// EnvPrefix prefixes every settings environment variable.
// TABLESYNC_STORE_KIND sets store.kind.
const EnvPrefix = "TABLESYNC_"

// settingsFileNames are looked up in the working directory, in order.
var settingsFileNames = []string{"tablesync.toml", "tablesync.yaml", "tablesync.yml"}

// Store kinds.
const (
	StoreFTPS = "ftps"
	StoreS3   = "s3"
)

// Settings is the resolved application configuration.
type Settings struct {
	Sources  string           `koanf:"sources"`
	Workdir  string           `koanf:"workdir"`
	Store    StoreSettings    `koanf:"store"`
	Fetch    FetchSettings    `koanf:"fetch"`
	Retry    RetrySettings    `koanf:"retry"`
	Schedule ScheduleSettings `koanf:"schedule"`
	History  HistorySettings  `koanf:"history"`
	Log      LogSettings      `koanf:"log"`

	// File is the settings file that was loaded, if any.
	File string `koanf:"-"`
}

// StoreSettings selects and configures the remote store.
type StoreSettings struct {
	Kind      string       `koanf:"kind"`
	RemoteDir string       `koanf:"remote_dir"`
	FTPS      FTPSSettings `koanf:"ftps"`
	S3        S3Settings   `koanf:"s3"`
}

// FTPSSettings configures the FTPS store.
type FTPSSettings struct {
	ImplicitTLS        bool          `koanf:"implicit_tls"`
	Timeout            time.Duration `koanf:"timeout"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	DisableEPSV        bool          `koanf:"disable_epsv"`
}

// S3Settings configures the S3 store.
type S3Settings struct {
	Bucket    string        `koanf:"bucket"`
	Region    string        `koanf:"region"`
	PathStyle bool          `koanf:"path_style"`
	Timeout   time.Duration `koanf:"timeout"`
}

// FetchSettings configures the fetcher.
type FetchSettings struct {
	Timeout time.Duration `koanf:"timeout"`
	Rate    float64       `koanf:"rate"`
	Burst   int           `koanf:"burst"`
}

// RetrySettings configures the retry policy.
type RetrySettings struct {
	Attempts   int           `koanf:"attempts"`
	Backoff    time.Duration `koanf:"backoff"`
	MaxBackoff time.Duration `koanf:"max_backoff"`
}

// ScheduleSettings configures the daily trigger.
type ScheduleSettings struct {
	At       string        `koanf:"at"`
	Tick     time.Duration `koanf:"tick"`
	Timezone string        `koanf:"timezone"`

	// WatchSources re-validates the sources file when it changes.
	WatchSources bool `koanf:"watch_sources"`
}

// HistorySettings configures run history.
type HistorySettings struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	Keep    int    `koanf:"keep"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaults are the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"sources":                         DefaultSourcesFile,
		"workdir":                         ".",
		"store.kind":                      StoreFTPS,
		"store.remote_dir":                "",
		"store.ftps.implicit_tls":         false,
		"store.ftps.timeout":              "30s",
		"store.ftps.insecure_skip_verify": false,
		"store.ftps.disable_epsv":         false,
		"store.s3.bucket":                 "",
		"store.s3.region":                 "us-east-1",
		"store.s3.path_style":             false,
		"store.s3.timeout":                "60s",
		"fetch.timeout":                   "60s",
		"fetch.rate":                      5.0,
		"fetch.burst":                     5,
		"retry.attempts":                  3,
		"retry.backoff":                   "1s",
		"retry.max_backoff":               "30s",
		"schedule.at":                     domain.DefaultTriggerTime,
		"schedule.tick":                   "1s",
		"schedule.timezone":               "",
		"schedule.watch_sources":          true,
		"history.enabled":                 true,
		"history.path":                    "",
		"history.keep":                    100,
		"log.level":                       "warn",
		"log.format":                      "text",
	}
}

// flagKeys maps CLI flag names onto settings keys.
var flagKeys = map[string]string{
	"sources":    "sources",
	"workdir":    "workdir",
	"store":      "store.kind",
	"at":         "schedule.at",
	"timezone":   "schedule.timezone",
	"history-db": "history.path",
	"no-history": "history.enabled",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// LoadSettings resolves settings from, lowest to highest precedence:
// defaults, the settings file, TABLESYNC_* environment variables, then
// flags that were explicitly set. An empty path searches the working
// directory for tablesync.toml or tablesync.yaml.
func LoadSettings(path string, flags *pflag.FlagSet) (*Settings, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("%w: loading defaults: %w", domain.ErrConfig, err)
	}

	// 2. Settings file
	explicit := path != ""
	if !explicit {
		path = findSettingsFile()
	}
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				path = ""
			} else {
				return nil, fmt.Errorf("%w: reading settings file %s: %w", domain.ErrConfig, path, err)
			}
		}
	}

	// 3. Environment
	envKeys := envKeyMap(k.Keys())
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: loading environment: %w", domain.ErrConfig, err)
	}

	// 4. Flags, only when explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			if f.Name == "no-history" {
				return key, f.Value.String() != "true"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("%w: loading flags: %w", domain.ErrConfig, err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("%w: decoding settings: %w", domain.ErrConfig, err)
	}
	s.File = path

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings no component can run with.
func (s *Settings) Validate() error {
	switch s.Store.Kind {
	case StoreFTPS:
	case StoreS3:
		if s.Store.S3.Bucket == "" {
			return fmt.Errorf("%w: store.s3.bucket is required for the s3 store", domain.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store kind %q (want %s or %s)", domain.ErrConfig, s.Store.Kind, StoreFTPS, StoreS3)
	}
	if _, err := s.TriggerTime(); err != nil {
		return err
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	if s.Retry.Attempts < 1 {
		return fmt.Errorf("%w: retry.attempts must be at least 1", domain.ErrConfig)
	}
	if s.Schedule.Tick <= 0 {
		return fmt.Errorf("%w: schedule.tick must be positive", domain.ErrConfig)
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", domain.ErrConfig, s.Log.Format)
	}
	return nil
}

// TriggerTime parses schedule.at.
func (s *Settings) TriggerTime() (domain.TimeOfDay, error) {
	at, err := domain.ParseTimeOfDay(s.Schedule.At)
	if err != nil {
		return domain.TimeOfDay{}, fmt.Errorf("%w: schedule.at: %w", domain.ErrConfig, err)
	}
	return at, nil
}

// Location resolves schedule.timezone; empty means the local zone.
func (s *Settings) Location() (*time.Location, error) {
	if s.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule.timezone: %w", domain.ErrConfig, err)
	}
	return loc, nil
}

// SchedulerConfig builds the scheduler configuration.
func (s *Settings) SchedulerConfig() (domain.SchedulerConfig, error) {
	at, err := s.TriggerTime()
	if err != nil {
		return domain.SchedulerConfig{}, err
	}
	loc, err := s.Location()
	if err != nil {
		return domain.SchedulerConfig{}, err
	}
	return domain.SchedulerConfig{At: at, Location: loc, Tick: s.Schedule.Tick}, nil
}

// findSettingsFile returns the first settings file in the working directory.
func findSettingsFile() string {
	for _, name := range settingsFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// parserFor picks a koanf parser from the file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return tomlParser{}, nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: settings file %s: unsupported format (want .toml or .yaml)", domain.ErrConfig, path)
	}
}

// envKeyMap maps TABLESYNC_STORE_REMOTE_DIR style names onto known keys.
// Unknown variables map to "" and are ignored.
func envKeyMap(keys []string) map[string]string {
	m := make(map[string]string, len(keys))
	for _, key := range keys {
		name := EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		m[name] = key
	}
	return m
}

// tomlParser adapts go-toml/v2 to koanf.Parser.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return toml.Marshal(m)
}
