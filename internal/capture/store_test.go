package capture

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/serialsniff/internal/serialport"
	"github.com/banshee-data/serialsniff/internal/sniffer"
	"github.com/banshee-data/serialsniff/internal/timeutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *timeutil.MockClock) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "capture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	clock := timeutil.NewMockClock(t0)
	s.SetClock(clock)
	return s, clock
}

func testSession() Session {
	return SessionFromConfig(sniffer.Config{
		RealPort:     "COM3",
		InjectedPort: "COM2",
		Options:      serialport.DefaultPortOptions(),
		Mode:         sniffer.Relay,
		Collapsing:   true,
	})
}

func TestStore_Migrations(t *testing.T) {
	s, _ := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestStore_SessionLifecycle(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	sess, err := s.BeginSession(ctx, testSession())
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, sess.ID, s.Active())

	_, err = s.BeginSession(ctx, testSession())
	assert.ErrorIs(t, err, ErrSessionActive)

	packets := []sniffer.SniffedPacket{
		{When: t0.Add(10 * time.Millisecond), Origin: sniffer.FromInjected, Content: []byte("AT\r")},
		{When: t0.Add(25 * time.Millisecond), Origin: sniffer.FromReal, Content: []byte{0x00, 0xff, 'O', 'K'}},
	}
	for _, p := range packets {
		s.Observe(p)
	}
	require.NoError(t, s.Err())

	clock.Advance(time.Minute)
	require.NoError(t, s.EndSession(ctx))
	assert.Empty(t, s.Active())
	assert.ErrorIs(t, s.EndSession(ctx), ErrNoActiveSession)

	got, err := s.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "COM3", got.RealPort)
	assert.Equal(t, "COM2", got.InjectedPort)
	assert.Equal(t, 9600, got.BaudRate)
	assert.Equal(t, "9600 8N1", got.LineOptions)
	assert.Equal(t, "relay", got.Mode)
	assert.True(t, got.Collapsed)
	assert.True(t, got.StartedAt.Equal(t0))
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(t0.Add(time.Minute)))

	stored, err := s.Packets(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, len(packets))
	for i := range packets {
		assert.True(t, stored[i].When.Equal(packets[i].When), "packet %d time", i)
		assert.Equal(t, packets[i].Origin, stored[i].Origin)
		assert.Equal(t, packets[i].Content, stored[i].Content)
	}
}

func TestStore_Sessions(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()

	first, err := s.BeginSession(ctx, testSession())
	require.NoError(t, err)
	require.NoError(t, s.EndSession(ctx))

	clock.Advance(time.Hour)
	second, err := s.BeginSession(ctx, testSession())
	require.NoError(t, err)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
	assert.Nil(t, sessions[0].EndedAt)

	latest, err := s.Session(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = s.Session(ctx, "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_RecordWithoutSession(t *testing.T) {
	s, _ := openTestStore(t)

	err := s.Record(context.Background(), sniffer.SniffedPacket{When: t0, Origin: sniffer.FromReal, Content: []byte("x")})
	assert.ErrorIs(t, err, ErrNoActiveSession)

	s.Observe(sniffer.SniffedPacket{When: t0, Origin: sniffer.FromReal, Content: []byte("x")})
	assert.ErrorIs(t, s.Err(), ErrNoActiveSession)
}

func TestStore_CloseEndsActiveSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	s, err := Open(path)
	require.NoError(t, err)

	sess, err := s.BeginSession(context.Background(), testSession())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.EndedAt)
}

func TestStore_PragmasOnEveryConnection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	// Hold two connections at once so the pool has to open a second one.
	c1, err := s.DB().Conn(ctx)
	require.NoError(t, err)
	defer c1.Close()
	c2, err := s.DB().Conn(ctx)
	require.NoError(t, err)
	defer c2.Close()

	for i, c := range []interface {
		QueryRowContext(context.Context, string, ...any) *sql.Row
	}{c1, c2} {
		var fk, timeout int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 1, fk, "connection %d foreign_keys", i)
		assert.Equal(t, 5000, timeout, "connection %d busy_timeout", i)
	}
}

func TestStore_DeleteSessionCascades(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	sess, err := s.BeginSession(ctx, testSession())
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, sniffer.SniffedPacket{When: t0, Origin: sniffer.FromReal, Content: []byte("OK")}))
	require.NoError(t, s.EndSession(ctx))

	_, err = s.DB().ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sess.ID)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM packets`).Scan(&n))
	assert.Zero(t, n)
}
