package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/serialsniff/internal/capture"
)

func newExportCommand() *cobra.Command {
	var dbPath, sessionID, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a recorded session to a pcap file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := capture.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.Session(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("session %q: %w", sessionID, err)
			}
			packets, err := store.Packets(cmd.Context(), sess.ID)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := capture.WritePCAP(f, packets); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d packets from session %s to %s\n", len(packets), sess.ID, out)
			return err
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "capture database")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: most recent)")
	cmd.Flags().StringVar(&out, "out", "capture.pcap", "output pcap file")
	cmd.MarkFlagRequired("db")
	return cmd
}
