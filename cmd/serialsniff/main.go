// Command serialsniff sits between a serial device and the software that
// talks to it, relays the traffic and prints it as a hex dump.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/banshee-data/serialsniff/internal/config"
	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/serialport"
	"github.com/banshee-data/serialsniff/internal/version"
)

var exampleUsage = strings.TrimSpace(`
  serialsniff --real /dev/ttyUSB0 --injected /dev/pts/3
  serialsniff --real COM3 --injected COM2 --collapsed --time --capture-db capture.db
  serialsniff --real /dev/ttyS0 --injected none --mode passive
  serialsniff ports
  serialsniff export --db capture.db --out session.pcap
`)

// rootOptions holds the flag-bound settings. cfg is the flag layer only;
// file and environment values are layered on top for every session.
type rootOptions struct {
	cfg     config.Config
	cfgPath string
	changed map[string]bool
}

// resolve returns the effective configuration for a session.
func (o *rootOptions) resolve() (config.Config, error) {
	cfg := o.cfg
	path := o.configPath()
	if err := config.Resolve(&cfg, path, o.changed); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (o *rootOptions) configPath() string {
	if o.cfgPath != "" {
		return o.cfgPath
	}
	return config.DefaultConfigPath()
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:           "serialsniff",
		Short:         "Relay and hex-dump the traffic of a serial link",
		Example:       exampleUsage,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.changed = map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { opts.changed[f.Name] = true })

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSniff(ctx, opts, cmd.OutOrStdout())
		},
	}

	f := root.Flags()
	f.StringVar(&opts.cfgPath, "config", "", "path to config file (default: $HOME/.serialsniff/config.toml)")
	f.StringVar(&opts.cfg.RealPort, "real", "", "port wired to the physical device, or \"none\"")
	f.StringVar(&opts.cfg.InjectedPort, "injected", "", "port the observed software uses, or \"none\"")
	f.IntVar(&opts.cfg.BaudRate, "baud", opts.cfg.BaudRate, "baud rate for both ports")
	f.StringVar(&opts.cfg.Parity, "parity", opts.cfg.Parity, "parity: none, even, odd, mark or space")
	f.StringVar(&opts.cfg.StopBits, "stop-bits", opts.cfg.StopBits, "stop bits: 1, 1.5 or 2")
	f.IntVar(&opts.cfg.DataBits, "data-bits", opts.cfg.DataBits, "data bits (5-8)")
	f.StringVar(&opts.cfg.Mode, "mode", opts.cfg.Mode, "relay (forward between ports) or passive (Y-cable, read only)")
	f.BoolVar(&opts.cfg.Collapsed, "collapsed", opts.cfg.Collapsed, "merge consecutive same-direction packets less than a second apart")
	f.BoolVar(&opts.cfg.FlushOnExit, "flush-on-exit", opts.cfg.FlushOnExit, "print the last collapsed packet when the session ends")
	f.IntVar(&opts.cfg.BytesPerLine, "bytes-per-line", opts.cfg.BytesPerLine, "bytes per dump line")
	f.BoolVar(&opts.cfg.OnlyHex, "only-hex", opts.cfg.OnlyHex, "print only the hex column")
	f.BoolVar(&opts.cfg.OnlyAscii, "only-ascii", opts.cfg.OnlyAscii, "print only the ASCII column")
	f.BoolVar(&opts.cfg.ShowTime, "time", opts.cfg.ShowTime, "prefix packets with milliseconds since the first packet")
	f.StringVar(&opts.cfg.Output, "output", opts.cfg.Output, "dump destination: stdout, none or a file path")
	f.StringVar(&opts.cfg.CaptureDB, "capture-db", "", "record sessions to this SQLite database")
	f.StringVar(&opts.cfg.PCAPPath, "pcap", "", "write packets to this pcap file")
	f.StringVar(&opts.cfg.Listen, "listen", "", "serve /debug/ routes on this address, e.g. localhost:8080")
	f.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level: debug, info, warn or error")
	f.BoolVar(&opts.cfg.WatchConfig, "watch-config", false, "restart the session when the config file changes")

	root.AddCommand(
		newPortsCommand(),
		newExportCommand(),
		newReportCommand(),
		newVersionCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		l := monitoring.Logger()
		var connErr *serialport.ConnectionError
		if errors.As(err, &connErr) {
			l.Error().Err(err).Msg("Connection error: probably one of the ports has a wrong name")
		} else {
			l.Error().Err(err).Msg("serialsniff")
		}
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
