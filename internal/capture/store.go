// Package capture persists sniffed traffic: a SQLite session store, pcap
// export and an HTML traffic report.
package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/sniffer"
	"github.com/banshee-data/serialsniff/internal/timeutil"
)

var (
	// ErrNoActiveSession is returned when packets arrive outside a session.
	ErrNoActiveSession = errors.New("capture: no active session")
	// ErrSessionActive is returned by BeginSession while another session is
	// still open.
	ErrSessionActive = errors.New("capture: a session is already active")
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("capture: session not found")
)

// Session describes one recorded sniffing run.
type Session struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	RealPort     string     `json:"real_port"`
	InjectedPort string     `json:"injected_port"`
	BaudRate     int        `json:"baud_rate"`
	LineOptions  string     `json:"line_options"`
	Mode         string     `json:"mode"`
	Collapsed    bool       `json:"collapsed"`
}

// SessionFromConfig describes a session about to run with cfg.
func SessionFromConfig(cfg sniffer.Config) Session {
	return Session{
		RealPort:     cfg.RealPort,
		InjectedPort: cfg.InjectedPort,
		BaudRate:     cfg.Options.BaudRate,
		LineOptions:  cfg.Options.String(),
		Mode:         cfg.Mode.String(),
		Collapsed:    cfg.Collapsing,
	}
}

// Store records sessions and their packets in SQLite. It implements
// sniffer.Observer for the active session.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock

	mu     sync.Mutex
	active string
	err    error
}

// connPragmas are applied by the driver to every pooled connection, not
// just the first one.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

// Open opens (creating if needed) the capture database at path and brings
// its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?"+connPragmas)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	s := &Store{db: db, path: path, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SetClock replaces the clock used for session start and end times.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// DB exposes the underlying handle for the SQL console.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database. An active session is ended first.
func (s *Store) Close() error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	var endErr error
	if active != "" {
		endErr = s.EndSession(context.Background())
	}
	return errors.Join(endErr, s.db.Close())
}

// BeginSession records a new session and makes it the target of Observe.
// The returned session carries the generated ID and start time.
func (s *Store) BeginSession(ctx context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return Session{}, ErrSessionActive
	}
	sess.ID = uuid.NewString()
	sess.StartedAt = s.clock.Now()
	sess.EndedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, real_port, injected_port, baud_rate, line_options, mode, collapsed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt.UnixNano(), sess.RealPort, sess.InjectedPort,
		sess.BaudRate, sess.LineOptions, sess.Mode, sess.Collapsed,
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to record session: %w", err)
	}
	s.active = sess.ID
	s.err = nil
	return sess, nil
}

// EndSession stamps the active session's end time.
func (s *Store) EndSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == "" {
		return ErrNoActiveSession
	}
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`,
		s.clock.Now().UnixNano(), s.active)
	s.active = ""
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// Active returns the ID of the session being recorded, or "".
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Observe implements sniffer.Observer. The first failure is logged and kept
// for Err; the engine is not interrupted.
func (s *Store) Observe(p sniffer.SniffedPacket) {
	if err := s.Record(context.Background(), p); err != nil {
		s.mu.Lock()
		first := s.err == nil
		if first {
			s.err = err
		}
		s.mu.Unlock()
		if first {
			l := monitoring.Logger()
			l.Error().Err(err).Msg("capture store write failed")
		}
	}
}

// Record inserts p into the active session.
func (s *Store) Record(ctx context.Context, p sniffer.SniffedPacket) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == "" {
		return ErrNoActiveSession
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO packets (session_id, ts_unix_nanos, origin, content) VALUES (?, ?, ?, ?)`,
		active, p.When.UnixNano(), p.Origin.String(), p.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to record packet: %w", err)
	}
	return nil
}

// Err returns the first error seen by Observe in the current session.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

const sessionColumns = `id, started_at, ended_at, real_port, injected_port, baud_rate, line_options, mode, collapsed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	err := row.Scan(&sess.ID, &started, &ended, &sess.RealPort, &sess.InjectedPort,
		&sess.BaudRate, &sess.LineOptions, &sess.Mode, &sess.Collapsed)
	if err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		sess.EndedAt = &t
	}
	return sess, nil
}

// Sessions lists all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one session by ID. An empty ID selects the most recent.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	var row *sql.Row
	if id == "" {
		row = s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT 1`)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	}
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

// Packets returns a session's packets in the order they were emitted.
func (s *Store) Packets(ctx context.Context, sessionID string) ([]sniffer.SniffedPacket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_unix_nanos, origin, content FROM packets WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sniffer.SniffedPacket
	for rows.Next() {
		var (
			ts      int64
			origin  string
			content []byte
		)
		if err := rows.Scan(&ts, &origin, &content); err != nil {
			return nil, err
		}
		o, err := sniffer.ParseOrigin(origin)
		if err != nil {
			return nil, err
		}
		out = append(out, sniffer.SniffedPacket{When: time.Unix(0, ts), Origin: o, Content: content})
	}
	return out, rows.Err()
}
