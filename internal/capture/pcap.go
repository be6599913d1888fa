package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// LinkTypeUser0 is DLT_USER0, the link type reserved for private
// encapsulations. Each record is one origin byte followed by the packet
// content.
const LinkTypeUser0 = layers.LinkType(147)

// SnapLen is the largest record written; longer packets are truncated.
const SnapLen = 262144

// Origin bytes at the start of each record.
const (
	pcapOriginReal     byte = 0x00
	pcapOriginInjected byte = 0x01
)

// PCAPWriter streams packets to a pcap file. It implements sniffer.Observer.
type PCAPWriter struct {
	mu  sync.Mutex
	w   *pcapgo.Writer
	err error
}

// NewPCAPWriter writes the file header to w and returns a writer for the
// records.
func NewPCAPWriter(w io.Writer) (*PCAPWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(SnapLen, LinkTypeUser0); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &PCAPWriter{w: pw}, nil
}

// Write appends one packet record.
func (p *PCAPWriter) Write(pkt sniffer.SniffedPacket) error {
	var tag byte
	switch pkt.Origin {
	case sniffer.FromReal:
		tag = pcapOriginReal
	case sniffer.FromInjected:
		tag = pcapOriginInjected
	default:
		return fmt.Errorf("cannot encode packet with origin %v", pkt.Origin)
	}

	data := make([]byte, 0, len(pkt.Content)+1)
	data = append(data, tag)
	data = append(data, pkt.Content...)
	ci := gopacket.CaptureInfo{
		Timestamp:     pkt.When,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if len(data) > SnapLen {
		data = data[:SnapLen]
		ci.CaptureLength = SnapLen
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.WritePacket(ci, data)
}

// Observe implements sniffer.Observer. After the first error the writer
// stops and the error is available from Err.
func (p *PCAPWriter) Observe(pkt sniffer.SniffedPacket) {
	if p.Err() != nil {
		return
	}
	if err := p.Write(pkt); err != nil {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		l := monitoring.Logger()
		l.Error().Err(err).Msg("pcap write failed")
	}
}

// Err returns the first error seen by Observe.
func (p *PCAPWriter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// WritePCAP writes packets to w as a complete pcap file.
func WritePCAP(w io.Writer, packets []sniffer.SniffedPacket) error {
	pw, err := NewPCAPWriter(w)
	if err != nil {
		return err
	}
	for i, pkt := range packets {
		if err := pw.Write(pkt); err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
	}
	return nil
}

// ReadPCAP decodes a file written by WritePCAP. Timestamps have microsecond
// resolution.
func ReadPCAP(r io.Reader) ([]sniffer.SniffedPacket, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if lt := pr.LinkType(); lt != LinkTypeUser0 {
		return nil, fmt.Errorf("unexpected link type %d, want %d", lt, LinkTypeUser0)
	}

	var out []sniffer.SniffedPacket
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out), err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("record %d: empty", len(out))
		}
		var origin sniffer.Origin
		switch data[0] {
		case pcapOriginReal:
			origin = sniffer.FromReal
		case pcapOriginInjected:
			origin = sniffer.FromInjected
		default:
			return nil, fmt.Errorf("record %d: unknown origin byte %#x", len(out), data[0])
		}
		content := append([]byte(nil), data[1:]...)
		out = append(out, sniffer.SniffedPacket{When: ci.Timestamp, Origin: origin, Content: content})
	}
}
