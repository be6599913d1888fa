package serialport

import "fmt"

// ConnectionError reports that a named port could not be opened: a wrong
// name, a busy device or an unplugged adapter. It is never retried.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("open serial port %q: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportIOError reports a read or write failure on a port that was opened
// successfully. It ends the session.
type TransportIOError struct {
	Port string
	Op   string
	Err  error
}

func (e *TransportIOError) Error() string {
	return fmt.Sprintf("%s serial port %q: %v", e.Op, e.Port, e.Err)
}

func (e *TransportIOError) Unwrap() error { return e.Err }
