// Package settings implements the hierarchical target/process settings
// store: a typed, validated view over layered sources (CLI flags >
// environment > file > defaults) rather than package-level globals, so
// every consumer reads the same snapshot through one struct.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// InlineBreakpointStrategy controls when breakpoints are also set on
// inlined call sites of a resolved function.
type InlineBreakpointStrategy string

const (
	InlineBreakpointNever   InlineBreakpointStrategy = "never"
	InlineBreakpointHeaders InlineBreakpointStrategy = "headers"
	InlineBreakpointAlways  InlineBreakpointStrategy = "always"
)

// SourceMapEntry rewrites a path prefix seen by the remote stub (From) to a
// path on the local filesystem (To), e.g. for symbol/source lookups against
// a cross-compiled target.
type SourceMapEntry struct {
	From string `mapstructure:"from" yaml:"from" validate:"required"`
	To   string `mapstructure:"to" yaml:"to" validate:"required"`
}

// TargetSettings holds the `target.*` key namespace.
type TargetSettings struct {
	DefaultArch                     string                   `mapstructure:"default-arch" yaml:"default-arch"`
	MoveToNearestCode               bool                     `mapstructure:"move-to-nearest-code" yaml:"move-to-nearest-code"`
	Language                        string                   `mapstructure:"language" yaml:"language"`
	InlineBreakpointStrategy        InlineBreakpointStrategy `mapstructure:"inline-breakpoint-strategy" yaml:"inline-breakpoint-strategy" validate:"omitempty,oneof=never headers always"`
	SkipPrologue                    bool                     `mapstructure:"skip-prologue" yaml:"skip-prologue"`
	BreakpointsUsePlatformAvoidList bool                     `mapstructure:"breakpoints-use-platform-avoid-list" yaml:"breakpoints-use-platform-avoid-list"`
	MaxMemoryReadSize                uint64                   `mapstructure:"max-memory-read-size" yaml:"max-memory-read-size" validate:"omitempty,gt=0"`
	NonStopMode                     bool                     `mapstructure:"non-stop-mode" yaml:"non-stop-mode"`
	TrapHandlerNames                []string                 `mapstructure:"trap-handler-names" yaml:"trap-handler-names"`
	SourceMap                       []SourceMapEntry         `mapstructure:"source-map" yaml:"source-map" validate:"dive"`
	ExecSearchPaths                 []string                 `mapstructure:"exec-search-paths" yaml:"exec-search-paths"`
	DebugFileSearchPaths            []string                 `mapstructure:"debug-file-search-paths" yaml:"debug-file-search-paths"`
	ClangModuleSearchPaths          []string                 `mapstructure:"clang-module-search-paths" yaml:"clang-module-search-paths"`
}

// GDBRemoteSettings holds the `process.gdb-remote.*` key namespace.
type GDBRemoteSettings struct {
	PacketTimeout        time.Duration `mapstructure:"packet-timeout" yaml:"packet-timeout" validate:"omitempty,gt=0"`
	TargetDefinitionFile string        `mapstructure:"target-definition-file" yaml:"target-definition-file"`
}

// ProcessSettings holds the `process.*` namespace (currently only the
// gdb-remote sub-tree from ; other process.* settings are not part of
// this subsystem's scope).
type ProcessSettings struct {
	GDBRemote GDBRemoteSettings `mapstructure:"gdb-remote" yaml:"gdb-remote"`
}

// Settings is the complete hierarchical key/value store: every `target.*`
// and `process.gdb-remote.*` key, loaded through one typed struct instead
// of scattered package globals.
type Settings struct {
	Target  TargetSettings  `mapstructure:"target" yaml:"target"`
	Process ProcessSettings `mapstructure:"process" yaml:"process"`
}

// Default returns the settings a freshly created target starts with.
func Default() *Settings {
	s := &Settings{
		Target: TargetSettings{
			DefaultArch:              "",
			MoveToNearestCode:        true,
			Language:                 "",
			InlineBreakpointStrategy: InlineBreakpointAlways,
			SkipPrologue:             true,
			MaxMemoryReadSize:        1024 * 1024,
			NonStopMode:              false,
		},
		Process: ProcessSettings{
			GDBRemote: GDBRemoteSettings{
				PacketTimeout: 5 * time.Second,
			},
		},
	}
	return s
}

// Load builds a Settings from, in ascending precedence: built-in defaults,
// a YAML/TOML file (configPath, or the default search path when empty),
// and GDBREMOTE_-prefixed environment variables via a viper+mapstructure
// layer. When no file is found the defaults are returned without
// consulting the environment; with a file, an environment variable
// overrides only a key the file itself sets.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	s := Default()
	if !found {
		return s, nil
	}

	if err := v.Unmarshal(s, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(s); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return s, nil
}

// Validate runs go-playground/validator struct-tag validation over s.
func Validate(s *Settings) error {
	return validator.New().Struct(s)
}

// Save writes s to path in YAML form.
func Save(s *Settings, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GDBREMOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read settings file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch val := data.(type) {
		case string:
			return time.ParseDuration(val)
		case int:
			return time.Duration(val) * time.Second, nil
		case int64:
			return time.Duration(val) * time.Second, nil
		case float64:
			return time.Duration(val*float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gdbremote-core")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gdbremote-core")
}

// DefaultConfigPath returns where Load looks when configPath is empty.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "settings.yaml")
}
