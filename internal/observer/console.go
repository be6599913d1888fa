// Package observer holds the packet consumers that sit behind the sniffing
// engine: the console printer, the live-tail broadcaster and counters.
package observer

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/serialsniff/internal/hexdump"
	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// FormatOptions control how a packet is rendered as text.
type FormatOptions struct {
	Dump hexdump.Options
	// ShowTime prefixes each packet with the milliseconds elapsed since the
	// first packet rendered.
	ShowTime bool
}

// Direction returns the marker printed for a packet's origin: '<' for data
// from the real device, '>' for data from the injected side.
func Direction(o sniffer.Origin) byte {
	switch o {
	case sniffer.FromReal:
		return '<'
	case sniffer.FromInjected:
		return '>'
	default:
		return '?'
	}
}

// Formatter renders packets as hex dump text. The first packet it sees sets
// the zero point for relative timestamps.
type Formatter struct {
	opts    FormatOptions
	start   time.Time
	started bool
}

// NewFormatter returns a Formatter with the given options.
func NewFormatter(opts FormatOptions) *Formatter {
	return &Formatter{opts: opts}
}

// Preamble returns the prefix for p, e.g. "  1234.567 < ".
func (f *Formatter) Preamble(p sniffer.SniffedPacket) string {
	if !f.started {
		f.start = p.When
		f.started = true
	}
	if !f.opts.ShowTime {
		return fmt.Sprintf("%c ", Direction(p.Origin))
	}
	ms := float64(p.When.Sub(f.start)) / float64(time.Millisecond)
	return fmt.Sprintf("%10.3f %c ", ms, Direction(p.Origin))
}

// Format renders p without a trailing newline.
func (f *Formatter) Format(p sniffer.SniffedPacket) string {
	return hexdump.Dump(p.Content, f.Preamble(p), f.opts.Dump)
}

// Console prints every packet to a writer, one dump per packet. Packets from
// the real device are blue and injected packets red when the writer is a
// colour terminal.
type Console struct {
	mu        sync.Mutex
	w         io.Writer
	formatter *Formatter

	realStyle     lipgloss.Style
	injectedStyle lipgloss.Style
	err           error
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer, opts FormatOptions) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:             w,
		formatter:     NewFormatter(opts),
		realStyle:     r.NewStyle().Foreground(lipgloss.Color("12")),
		injectedStyle: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Observe implements sniffer.Observer.
func (c *Console) Observe(p sniffer.SniffedPacket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return
	}
	style := c.realStyle
	if p.Origin == sniffer.FromInjected {
		style = c.injectedStyle
	}

	// Styles are applied line by line: rendering a multi-line block pads every
	// line to the widest one.
	var b strings.Builder
	for _, line := range strings.Split(c.formatter.Format(p), "\n") {
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(c.w, b.String()); err != nil {
		c.err = err
	}
}

// Err returns the first write error, after which the Console stops writing.
func (c *Console) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
