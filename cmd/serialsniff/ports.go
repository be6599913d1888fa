package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/banshee-data/serialsniff/internal/serialport"
)

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports known to the operating system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialport.ListPorts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				_, err := fmt.Fprintln(out, "no serial ports found")
				return err
			}
			_, err = fmt.Fprintln(out, renderPorts(lipgloss.NewRenderer(out), ports))
			return err
		},
	}
}

func renderPorts(r *lipgloss.Renderer, ports []serialport.PortInfo) string {
	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		usb := ""
		if p.IsUSB {
			usb = "yes"
		}
		rows = append(rows, []string{p.Name, usb, p.VID, p.PID, p.SerialNumber, p.Product})
	}
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers("PORT", "USB", "VID", "PID", "SERIAL", "PRODUCT").
		Rows(rows...).
		String()
}
