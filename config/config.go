// Package config loads the CLI's TOML settings file. Grounded directly
// on the teacher's config/config.go: nested per-section structs, a
// DefaultConfig constructor, and a platform-specific default path,
// narrowed from the emulator's execution/debugger/display/trace/
// statistics sections down to the sections spec.md §4.9's CLI actually
// exposes (compiler sizing, the interpreter watchdog, the terminal
// inspector, and instruction tracing).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds every setting `cmd/pinec` reads before compiling or
// running a program.
type Config struct {
	Compiler struct {
		CodeSize  int `toml:"code_size"`
		HeapSize  int `toml:"heap_size"`
		MaxArray  int `toml:"max_array_elements"`
		MaxParams int `toml:"max_params"`
		CacheWays int `toml:"resource_cache_entries"`
	} `toml:"compiler"`

	Runtime struct {
		MaxSteps   uint64 `toml:"max_steps"`
		StackWords int    `toml:"stack_words"`
	} `toml:"runtime"`

	Debugger struct {
		HistorySize   int  `toml:"history_size"`
		ShowSource    bool `toml:"show_source"`
		ShowRegisters bool `toml:"show_registers"`
	} `toml:"debugger"`

	Trace struct {
		OutputFile   string `toml:"output_file"`
		IncludeRegs  bool   `toml:"include_registers"`
		IncludeFlags bool   `toml:"include_flags"`
	} `toml:"trace"`
}

// DefaultConfig returns a Config matching the spec's named constants
// (spec.md §3 "2 KiB code buffer", "32 KiB script heap"; §4.6 maxParams
// and maxArrayElems; §4.3's 8-way page cache).
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Compiler.CodeSize = 2048
	cfg.Compiler.HeapSize = 32 * 1024
	cfg.Compiler.MaxArray = 512
	cfg.Compiler.MaxParams = 7
	cfg.Compiler.CacheWays = 8

	cfg.Runtime.MaxSteps = 2_000_000
	cfg.Runtime.StackWords = 256

	cfg.Debugger.HistorySize = 1000
	cfg.Debugger.ShowSource = true
	cfg.Debugger.ShowRegisters = true

	cfg.Trace.OutputFile = "trace.log"
	cfg.Trace.IncludeRegs = true
	cfg.Trace.IncludeFlags = true

	return cfg
}

// GetConfigPath returns the platform-specific config file path
// (~/.config/pine2k/config.toml on Linux/macOS, %APPDATA%\pine2k\
// config.toml on Windows), falling back to a bare relative path if the
// home/config directory can't be determined or created.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "pine2k")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "pine2k")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from path, falling back to defaults
// when the file does not exist (a first run need not create one).
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user-specified config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
