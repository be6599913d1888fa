package serialport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Default line parameters, 9600 8N1.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultStopBits = "1"
	DefaultParity   = "N"
)

// PortOptions describes the line parameters shared by both sides of a
// sniffed link. Both ports are always opened with the same options.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" toml:"baud_rate"`
	DataBits int    `json:"data_bits" toml:"data_bits"`
	StopBits string `json:"stop_bits" toml:"stop_bits"`
	Parity   string `json:"parity" toml:"parity"`
}

// DefaultPortOptions returns 9600 8N1.
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		StopBits: DefaultStopBits,
		Parity:   DefaultParity,
	}
}

// Normalize validates the options and applies defaults for any unset values.
// Parity is reduced to a single letter (N, E, O, M, S) and stop bits to one
// of "1", "1.5" or "2".
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = DefaultDataBits
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	switch strings.TrimSpace(strings.ToLower(opts.StopBits)) {
	case "", "1", "one":
		opts.StopBits = "1"
	case "1.5", "onepointfive":
		opts.StopBits = "1.5"
	case "2", "two":
		opts.StopBits = "2"
	default:
		return opts, fmt.Errorf("invalid stop bits %q: supported values are 1, 1.5 or 2", o.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	case "M", "MARK":
		parity = "M"
	case "S", "SPACE":
		parity = "S"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected none, even, odd, mark or space", o.Parity)
	}
	opts.Parity = parity

	return opts, nil
}

// Equal reports whether two PortOptions describe the same line settings.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

// String renders the options in the usual 9600 8N1 notation.
func (o PortOptions) String() string {
	n, err := o.Normalize()
	if err != nil {
		return fmt.Sprintf("invalid(%d %d%s%s)", o.BaudRate, o.DataBits, o.Parity, o.StopBits)
	}
	return fmt.Sprintf("%d %d%s%s", n.BaudRate, n.DataBits, n.Parity, n.StopBits)
}

// SerialMode converts the port options into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	switch opts.StopBits {
	case "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	case "M":
		mode.Parity = serial.MarkParity
	case "S":
		mode.Parity = serial.SpaceParity
	}

	return mode, nil
}
