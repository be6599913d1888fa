package observer

import "github.com/banshee-data/serialsniff/internal/sniffer"

// Tee returns an observer that hands each packet to every non-nil observer
// in order.
func Tee(observers ...sniffer.Observer) sniffer.Observer {
	var list multi
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	if len(list) == 1 {
		return list[0]
	}
	return list
}

type multi []sniffer.Observer

func (m multi) Observe(p sniffer.SniffedPacket) {
	for _, o := range m {
		o.Observe(p)
	}
}
