package capture

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/serialsniff/internal/sniffer"
	"github.com/banshee-data/serialsniff/internal/testutil"
)

func newAdminMux(t *testing.T) (*Store, *http.ServeMux) {
	t.Helper()
	s, _ := openTestStore(t)
	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))
	return s, mux
}

func TestAdminRoutes_Report(t *testing.T) {
	s, mux := newAdminMux(t)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/sniffer/report"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	sess, err := s.BeginSession(context.Background(), testSession())
	require.NoError(t, err)
	s.Observe(sniffer.SniffedPacket{When: t0, Origin: sniffer.FromReal, Content: []byte("x")})

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/sniffer/report?session="+sess.ID))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Bytes per second")
}

func TestAdminRoutes_Sessions(t *testing.T) {
	s, mux := newAdminMux(t)
	sess, err := s.BeginSession(context.Background(), testSession())
	require.NoError(t, err)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/sniffer/sessions"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got []Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, sess.ID, got[0].ID)
}

func TestAdminRoutes_Backup(t *testing.T) {
	_, mux := newAdminMux(t)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/backup"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3\x00")), "backup is not a SQLite file")
}

func TestAdminRoutes_RejectsRemote(t *testing.T) {
	_, mux := newAdminMux(t)

	req := testutil.LocalRequest(http.MethodGet, "/debug/sniffer/sessions")
	req.RemoteAddr = "203.0.113.7:4000"
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
