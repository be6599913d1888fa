package serialport

import (
	"errors"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Opener opens a named port with the given line parameters. Failures are
// reported as *ConnectionError.
type Opener interface {
	Open(name string, opts PortOptions) (Porter, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(name string, opts PortOptions) (Porter, error)

func (f OpenerFunc) Open(name string, opts PortOptions) (Porter, error) {
	return f(name, opts)
}

// RealOpener opens operating system serial ports through go.bug.st/serial.
type RealOpener struct{}

// Open opens the port at name. Invalid options and driver failures both come
// back as *ConnectionError so callers have a single error to test for.
func (RealOpener) Open(name string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, &ConnectionError{Port: name, Err: err}
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, &ConnectionError{Port: name, Err: err}
	}
	return port, nil
}

// PortInfo describes a serial port known to the operating system.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts returns the serial ports currently present, sorted by name. USB
// details are filled in when the platform enumerator provides them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Fall back to the plain name list; some platforms cannot enumerate USB
		// metadata.
		names, nerr := serial.GetPortsList()
		if nerr != nil {
			return nil, errors.Join(err, nerr)
		}
		ports := make([]PortInfo, 0, len(names))
		for _, n := range names {
			ports = append(ports, PortInfo{Name: n})
		}
		sortPorts(ports)
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []PortInfo) {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
}

// Known reports whether name appears in ports.
func Known(ports []PortInfo, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}
