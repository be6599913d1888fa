// Package config resolves the sniffer's settings from defaults, a TOML file,
// SERIALSNIFF_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/serialsniff/internal/hexdump"
	"github.com/banshee-data/serialsniff/internal/serialport"
	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// Output names accepted for the console destination.
const (
	OutputStdout = "stdout"
	OutputNone   = "none"
)

// Config holds the settings for a sniffing session.
type Config struct {
	RealPort     string
	InjectedPort string

	BaudRate int
	Parity   string
	StopBits string
	DataBits int

	Mode        string
	Collapsed   bool
	FlushOnExit bool

	BytesPerLine int
	OnlyHex      bool
	OnlyAscii    bool
	ShowTime     bool
	Output       string

	CaptureDB string
	PCAPPath  string
	Listen    string
	LogLevel  string

	WatchConfig bool
}

// DefaultConfig returns 9600 8N1 relay mode printing to stdout.
func DefaultConfig() Config {
	return Config{
		BaudRate:     serialport.DefaultBaudRate,
		Parity:       "none",
		StopBits:     serialport.DefaultStopBits,
		DataBits:     serialport.DefaultDataBits,
		Mode:         sniffer.Relay.String(),
		BytesPerLine: hexdump.DefaultBytesPerRow,
		Output:       OutputStdout,
		LogLevel:     "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.RealPort == "" {
		return errors.New("real port is required (use \"none\" to only read the injected side)")
	}
	if c.InjectedPort == "" {
		return errors.New("injected port is required (use \"none\" to only read the real side)")
	}
	if serialport.IsNone(c.RealPort) && serialport.IsNone(c.InjectedPort) {
		return errors.New("real and injected port cannot both be none")
	}
	if c.OnlyHex && c.OnlyAscii {
		return errors.New("only-hex and only-ascii are mutually exclusive")
	}
	if c.BytesPerLine <= 0 {
		return fmt.Errorf("bytes per line must be positive, got %d", c.BytesPerLine)
	}
	if _, err := sniffer.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}
	return nil
}

// PortOptions returns the line settings shared by both ports.
func (c Config) PortOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
	}
}

// Sniffer returns the engine configuration.
func (c Config) Sniffer() (sniffer.Config, error) {
	mode, err := sniffer.ParseMode(c.Mode)
	if err != nil {
		return sniffer.Config{}, err
	}
	return sniffer.Config{
		RealPort:     c.RealPort,
		InjectedPort: c.InjectedPort,
		Options:      c.PortOptions(),
		Mode:         mode,
		Collapsing:   c.Collapsed,
		FlushOnClose: c.FlushOnExit,
	}.Validate()
}

// Dump returns the hex dump settings.
func (c Config) Dump() hexdump.Options {
	opts := hexdump.Options{Format: hexdump.Combined, BytesPerRow: c.BytesPerLine}
	switch {
	case c.OnlyHex:
		opts.Format = hexdump.HexOnly
	case c.OnlyAscii:
		opts.Format = hexdump.AsciiOnly
	}
	return opts
}

// DefaultConfigPath returns ~/.serialsniff/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".serialsniff", "config.toml")
	}
	return ""
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Resolve layers the config file at path (skipped when it does not exist)
// and then the environment over cfg. Fields whose flag is in changed are
// left alone.
func Resolve(cfg *Config, path string, changed map[string]bool) error {
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		ApplyFileConfig(cfg, fc, changed)
	}
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// configSetter applies values only where the corresponding flag was not set
// on the command line.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setBoolFromString(flag, value string, dst *bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = b
	return nil
}
