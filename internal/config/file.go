package config

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML form of Config. Booleans are pointers so an absent
// key does not override a default.
type FileConfig struct {
	RealPort     string `toml:"real_port"`
	InjectedPort string `toml:"injected_port"`
	BaudRate     int    `toml:"baud_rate"`
	Parity       string `toml:"parity"`
	StopBits     string `toml:"stop_bits"`
	DataBits     int    `toml:"data_bits"`
	Mode         string `toml:"mode"`
	Collapsed    *bool  `toml:"collapsed"`
	FlushOnExit  *bool  `toml:"flush_on_exit"`
	BytesPerLine int    `toml:"bytes_per_line"`
	OnlyHex      *bool  `toml:"only_hex"`
	OnlyAscii    *bool  `toml:"only_ascii"`
	ShowTime     *bool  `toml:"show_time"`
	Output       string `toml:"output"`
	CaptureDB    string `toml:"capture_db"`
	PCAPPath     string `toml:"pcap"`
	Listen       string `toml:"listen"`
	LogLevel     string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFileConfig copies the values present in fc into cfg, skipping fields
// whose flag is in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setString("real", fc.RealPort, &cfg.RealPort)
	s.setString("injected", fc.InjectedPort, &cfg.InjectedPort)
	s.setInt("baud", fc.BaudRate, &cfg.BaudRate)
	s.setString("parity", fc.Parity, &cfg.Parity)
	s.setString("stop-bits", fc.StopBits, &cfg.StopBits)
	s.setInt("data-bits", fc.DataBits, &cfg.DataBits)
	s.setString("mode", fc.Mode, &cfg.Mode)
	s.setBool("collapsed", fc.Collapsed, &cfg.Collapsed)
	s.setBool("flush-on-exit", fc.FlushOnExit, &cfg.FlushOnExit)
	s.setInt("bytes-per-line", fc.BytesPerLine, &cfg.BytesPerLine)
	s.setBool("only-hex", fc.OnlyHex, &cfg.OnlyHex)
	s.setBool("only-ascii", fc.OnlyAscii, &cfg.OnlyAscii)
	s.setBool("time", fc.ShowTime, &cfg.ShowTime)
	s.setString("output", fc.Output, &cfg.Output)
	s.setString("capture-db", fc.CaptureDB, &cfg.CaptureDB)
	s.setString("pcap", fc.PCAPPath, &cfg.PCAPPath)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
}
