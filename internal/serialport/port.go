// Package serialport opens and describes the two serial lines a sniffing
// session sits between.
package serialport

import (
	"errors"
	"io"
	"strings"
)

// None is the port name that marks an absent side of the link. A session with
// one side set to None only listens to the other side and never relays.
const None = "none"

// IsNone reports whether name designates the absent side.
func IsNone(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), None)
}

// Porter defines the minimal interface needed for one side of the link.
// This abstraction enables unit testing without real serial hardware.
//
// Read is expected to block until at least one byte is buffered and then
// return everything that is available, up to len(p). That is how a port
// signals readiness to the relay engine.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// ErrWriteFailed is returned when a port accepts fewer bytes than requested
// and makes no further progress.
var ErrWriteFailed = errors.New("failed to write to serial port")

// WriteAll writes p to port, retrying short writes until every byte is
// accepted.
func WriteAll(port io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := port.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrWriteFailed
		}
		p = p[n:]
	}
	return nil
}
