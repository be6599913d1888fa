package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/serialsniff/internal/sniffer"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Bucket is the traffic of one second of a session.
type Bucket struct {
	Offset   time.Duration
	Real     int
	Injected int
}

// Histogram groups packet bytes into one-second buckets from the first
// packet. Empty seconds in between are kept so the x axis is linear.
func Histogram(packets []sniffer.SniffedPacket) []Bucket {
	if len(packets) == 0 {
		return nil
	}
	start := packets[0].When
	var out []Bucket
	for _, p := range packets {
		idx := int(p.When.Sub(start) / time.Second)
		if idx < 0 {
			idx = 0
		}
		for len(out) <= idx {
			out = append(out, Bucket{Offset: time.Duration(len(out)) * time.Second})
		}
		switch p.Origin {
		case sniffer.FromReal:
			out[idx].Real += len(p.Content)
		case sniffer.FromInjected:
			out[idx].Injected += len(p.Content)
		}
	}
	return out
}

// RenderReport writes an HTML page with a stacked bar chart of bytes per
// second for each origin.
func RenderReport(w io.Writer, sess Session, packets []sniffer.SniffedPacket) error {
	buckets := Histogram(packets)

	x := make([]string, 0, len(buckets))
	realBytes := make([]opts.BarData, 0, len(buckets))
	injectedBytes := make([]opts.BarData, 0, len(buckets))
	for _, b := range buckets {
		x = append(x, fmt.Sprintf("%ds", int(b.Offset/time.Second)))
		realBytes = append(realBytes, opts.BarData{Value: b.Real})
		injectedBytes = append(injectedBytes, opts.BarData{Value: b.Injected})
	}

	subtitle := fmt.Sprintf("%s <-> %s, %s, %d packets", sess.RealPort, sess.InjectedPort, sess.LineOptions, len(packets))
	if !sess.StartedAt.IsZero() {
		subtitle = sess.StartedAt.Format(time.RFC3339) + " " + subtitle
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "serialsniff report", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Bytes per second", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bytes"}),
	)
	bar.SetXAxis(x).
		AddSeries("real", realBytes, charts.WithBarChartOpts(opts.BarChart{Stack: "bytes"})).
		AddSeries("injected", injectedBytes, charts.WithBarChartOpts(opts.BarChart{Stack: "bytes"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)
	return page.Render(w)
}
