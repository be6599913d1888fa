// Package hexdump renders byte sequences as positional hex/ASCII dumps.
//
// A dump is split into rows of a fixed number of bytes. The first row starts
// with a caller supplied preamble, typically a timestamp and a direction
// marker, and every following row is indented by the same width so the
// columns line up:
//
//	  12.500 < 65 66 67 68 69 6a 6b 6c | efghijkl
//	         6d 6e                   | mn
package hexdump

import (
	"fmt"
	"strings"
)

// Format selects which columns a dump contains.
type Format int

const (
	// Combined prints the hex column, a "| " separator and the ASCII column.
	Combined Format = iota
	// HexOnly prints the hex column alone.
	HexOnly
	// AsciiOnly prints the ASCII column alone.
	AsciiOnly
)

func (f Format) String() string {
	switch f {
	case Combined:
		return "combined"
	case HexOnly:
		return "hex"
	case AsciiOnly:
		return "ascii"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts the names produced by Format.String.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "combined", "plain":
		return Combined, nil
	case "hex", "hexonly", "onlyhex":
		return HexOnly, nil
	case "ascii", "asciionly", "onlyascii":
		return AsciiOnly, nil
	}
	return Combined, fmt.Errorf("unknown dump format %q: expected combined, hex or ascii", s)
}

// DefaultBytesPerRow is used when Options.BytesPerRow is not positive.
const DefaultBytesPerRow = 16

// Options controls the shape of a dump. The zero value is a combined dump
// with 16 bytes per row.
type Options struct {
	Format      Format
	BytesPerRow int
}

func (o Options) bytesPerRow() int {
	if o.BytesPerRow <= 0 {
		return DefaultBytesPerRow
	}
	return o.BytesPerRow
}

const hexDigits = "0123456789abcdef"

// ToHex renders data as a combined dump with 16 bytes per row.
func ToHex(data []byte, preamble string) string {
	return Dump(data, preamble, Options{})
}

// Dump renders data according to opts. Empty input yields the empty string,
// preamble included. Rows are separated by '\n' with no trailing newline.
func Dump(data []byte, preamble string, opts Options) string {
	if len(data) == 0 {
		return ""
	}

	perRow := opts.bytesPerRow()
	rows := (len(data) + perRow - 1) / perRow
	indent := strings.Repeat(" ", len(preamble))

	var b strings.Builder
	b.Grow(rows * (len(preamble) + 4*perRow + 3))

	for r := 0; r < rows; r++ {
		start := r * perRow
		end := min(start+perRow, len(data))
		row := data[start:end]

		if r == 0 {
			b.WriteString(preamble)
		} else {
			b.WriteByte('\n')
			b.WriteString(indent)
		}

		if opts.Format != AsciiOnly {
			for _, c := range row {
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0x0f])
				b.WriteByte(' ')
			}
		}

		if opts.Format != HexOnly {
			if opts.Format == Combined {
				b.WriteString(strings.Repeat(" ", 3*(perRow-len(row))))
				b.WriteString("| ")
			}
			for _, c := range row {
				b.WriteByte(Printable(c))
			}
		}
	}

	return b.String()
}

// Printable returns c when it is printable ASCII (0x20 to 0x7e) and '.'
// otherwise.
func Printable(c byte) byte {
	if c >= 0x20 && c <= 0x7e {
		return c
	}
	return '.'
}
