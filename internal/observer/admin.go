package observer

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/serialsniff/internal/httputil"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var tailTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/tail.html.tmpl"))

// AttachAdminRoutes registers the live-tail and stats endpoints under
// /debug/sniffer/ on mux. Like every tsweb debug route they are only served
// to loopback or tailnet clients.
func AttachAdminRoutes(mux *http.ServeMux, b *Broadcaster, stats *Stats, opts FormatOptions) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("sniffer", "live packet tail", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteHTML(w, func(out io.Writer) error {
			return tailTemplate.Execute(out, struct{ TailPath string }{"/debug/sniffer/tail"})
		})
	})

	// Server-Sent Events, one event per packet. The event name is the origin
	// and each line of the dump is a data line.
	debug.HandleSilentFunc("sniffer/tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := b.Subscribe()
		defer b.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		f := NewFormatter(opts)
		for {
			select {
			case p, ok := <-c:
				if !ok {
					return
				}
				var ev strings.Builder
				fmt.Fprintf(&ev, "event: %s\n", p.Origin)
				for _, line := range strings.Split(f.Format(p), "\n") {
					fmt.Fprintf(&ev, "data: %s\n", line)
				}
				ev.WriteString("\n")
				if _, err := io.WriteString(w, ev.String()); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("sniffer/stats", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, struct {
			Snapshot
			Subscribers int    `json:"subscribers"`
			Dropped     uint64 `json:"dropped"`
		}{stats.Snapshot(), b.Subscribers(), b.Dropped()})
	})
}
