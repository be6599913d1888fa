package config

import "os"

// EnvPrefix starts every environment variable the sniffer reads.
const EnvPrefix = "SERIALSNIFF_"

// ApplyEnvConfig applies SERIALSNIFF_* environment variables to cfg. They
// override the config file but not flags set on the command line.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("real", env("REAL_PORT"), &cfg.RealPort)
	s.setString("injected", env("INJECTED_PORT"), &cfg.InjectedPort)
	s.setString("parity", env("PARITY"), &cfg.Parity)
	s.setString("stop-bits", env("STOP_BITS"), &cfg.StopBits)
	s.setString("mode", env("MODE"), &cfg.Mode)
	s.setString("output", env("OUTPUT"), &cfg.Output)
	s.setString("capture-db", env("CAPTURE_DB"), &cfg.CaptureDB)
	s.setString("pcap", env("PCAP"), &cfg.PCAPPath)
	s.setString("listen", env("LISTEN"), &cfg.Listen)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	ints := []struct {
		flag, name string
		dst        *int
	}{
		{"baud", "BAUD_RATE", &cfg.BaudRate},
		{"data-bits", "DATA_BITS", &cfg.DataBits},
		{"bytes-per-line", "BYTES_PER_LINE", &cfg.BytesPerLine},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.name), i.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		flag, name string
		dst        *bool
	}{
		{"collapsed", "COLLAPSED", &cfg.Collapsed},
		{"flush-on-exit", "FLUSH_ON_EXIT", &cfg.FlushOnExit},
		{"only-hex", "ONLY_HEX", &cfg.OnlyHex},
		{"only-ascii", "ONLY_ASCII", &cfg.OnlyAscii},
		{"time", "SHOW_TIME", &cfg.ShowTime},
	}
	for _, b := range bools {
		if err := s.setBoolFromString(b.flag, env(b.name), b.dst); err != nil {
			return err
		}
	}
	return nil
}
