package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/serialsniff/internal/capture"
	"github.com/banshee-data/serialsniff/internal/sniffer"
)

func newReportCommand() *cobra.Command {
	var dbPath, pcapPath, sessionID, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a traffic chart for a recorded session or pcap file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sess    capture.Session
				packets []sniffer.SniffedPacket
				err     error
			)
			switch {
			case dbPath != "" && pcapPath != "":
				return errors.New("use either --db or --pcap, not both")
			case dbPath != "":
				store, err := capture.Open(dbPath)
				if err != nil {
					return err
				}
				defer store.Close()
				if sess, err = store.Session(cmd.Context(), sessionID); err != nil {
					return fmt.Errorf("session %q: %w", sessionID, err)
				}
				if packets, err = store.Packets(cmd.Context(), sess.ID); err != nil {
					return err
				}
			case pcapPath != "":
				f, err := os.Open(pcapPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if packets, err = capture.ReadPCAP(f); err != nil {
					return err
				}
				sess = capture.Session{RealPort: "real", InjectedPort: "injected", LineOptions: pcapPath}
				if len(packets) > 0 {
					sess.StartedAt = packets[0].When
				}
			default:
				return errors.New("one of --db or --pcap is required")
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := capture.RenderReport(f, sess, packets); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote report of %d packets to %s\n", len(packets), out)
			return err
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "capture database")
	cmd.Flags().StringVar(&pcapPath, "pcap", "", "pcap file written by --pcap or export")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: most recent)")
	cmd.Flags().StringVar(&out, "out", "report.html", "output HTML file")
	return cmd
}
