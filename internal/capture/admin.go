package capture

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/serialsniff/internal/httputil"
	"github.com/banshee-data/serialsniff/internal/monitoring"
)

// AttachAdminRoutes mounts the SQL console, database backup, session list
// and traffic report on the tsweb debug handler of mux.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.db, &tailsql.DBOptions{
		Label: "Capture DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the capture database now", http.HandlerFunc(s.handleBackup))

	debug.HandleSilentFunc("sniffer/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := s.Sessions(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.HandleFunc("sniffer/report", "traffic chart for the current or ?session= session", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if id == "" {
			id = s.Active()
		}
		sess, err := s.Session(r.Context(), id)
		if errors.Is(err, ErrSessionNotFound) {
			httputil.NotFound(w, "session not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		packets, err := s.Packets(r.Context(), sess.ID)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteHTML(w, func(out io.Writer) error {
			return RenderReport(out, sess, packets)
		})
	})
	return nil
}

func (s *Store) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("serialsniff-backup-%d.db", time.Now().UnixNano()))
	if _, err := s.db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("failed to stream backup: %v", err)
	}
}
