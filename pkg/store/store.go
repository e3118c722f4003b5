package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	customlog "github.com/pyroscout/controller/pkg/log"
)

// Event categories recorded during a session.
const (
	CategoryLink     = "link"
	CategoryNav      = "nav"
	CategoryObstacle = "obstacle"
	CategorySensor   = "sensor"
)

//go:embed schema.sql
var schemaSQL string

// Session is a recorded mission session.
type Session struct {
	ID        string     `json:"id"`
	RobotID   string     `json:"robot_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Notes     string     `json:"notes"`
}

// Event is a single recorded occurrence within a session.
type Event struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Category   string          `json:"category"`
	Detail     json.RawMessage `json:"detail"`
}

// Store records mission sessions and their events in a SQLite database.
type Store struct {
	db     *sql.DB
	logger customlog.Logger
}

// Open opens (creating if necessary) the session database at path.
func Open(path string, logger customlog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	logger.Infof("Session database ready at %s", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession creates a new session and returns its generated ID.
func (s *Store) StartSession(robotID, notes string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, robot_id, started_at, notes) VALUES (?, ?, ?, ?)`,
		id, robotID, time.Now().UnixMilli(), notes,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	s.logger.Infof("Session %s started for robot %s", id, robotID)
	return id, nil
}

// EndSession marks a session as finished.
func (s *Store) EndSession(id string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no active session with id %s", id)
	}
	s.logger.Infof("Session %s ended", id)
	return nil
}

// RecordEvent stores an event under a session. The detail is marshaled to
// JSON.
func (s *Store) RecordEvent(sessionID, category string, detail interface{}) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal event detail: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (session_id, recorded_at, category, detail) VALUES (?, ?, ?, ?)`,
		sessionID, time.Now().UnixMilli(), category, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetSession fetches a single session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, robot_id, started_at, ended_at, notes FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, err
}

// ListSessions returns recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, robot_id, started_at, ended_at, notes FROM sessions
		 ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// ListEvents returns the events of a session in recording order, optionally
// filtered by category ("" means all).
func (s *Store) ListEvents(sessionID, category string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `SELECT id, session_id, recorded_at, category, detail FROM events
	          WHERE session_id = ?`
	args := []interface{}{sessionID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY recorded_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev     Event
			at     int64
			detail string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &at, &ev.Category, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.RecordedAt = time.UnixMilli(at)
		ev.Detail = json.RawMessage(detail)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventCount returns how many events a session holds.
func (s *Store) EventCount(sessionID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.RobotID, &started, &ended, &sess.Notes); err != nil {
		return nil, err
	}
	sess.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		sess.EndedAt = &t
	}
	return &sess, nil
}
