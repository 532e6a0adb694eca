package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/examcert/internal/model"
	"github.com/pavelanni/examcert/internal/session"

	_ "modernc.org/sqlite"
)

// DefaultTTL is how long an idle exam session is kept.
const DefaultTTL = 2 * time.Hour

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store keeps in-flight exam sessions. With the default ":memory:" path
// nothing survives a restart.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

func New(dbPath string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	dsn := dbPath
	if dbPath != ":memory:" && !strings.Contains(dbPath, "?") {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes
	// session updates.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exam_sessions (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		course TEXT NOT NULL,
		level TEXT NOT NULL,
		state TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		document TEXT,
		answers TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exam_sessions_expires ON exam_sessions(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

// CreateSession stores a new session.
func (s *Store) CreateSession(sess *session.Session) error {
	doc, answers, err := encodeSession(sess)
	if err != nil {
		return err
	}
	t := now()
	_, err = s.db.Exec(
		`INSERT INTO exam_sessions (id, username, course, level, state, position, document, answers, error, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Username, sess.Course, sess.Level, sess.State, sess.Position, doc, answers, sess.Err,
		sess.CreatedAt.UTC(), t.Add(s.ttl),
	)
	return err
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getSession(q queryRower, id string) (*session.Session, error) {
	var (
		sess      session.Session
		doc       sql.NullString
		answers   sql.NullString
		expiresAt time.Time
	)
	err := q.QueryRow(
		`SELECT id, username, course, level, state, position, document, answers, error, created_at, expires_at
		 FROM exam_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Username, &sess.Course, &sess.Level, &sess.State, &sess.Position,
		&doc, &answers, &sess.Err, &sess.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if now().After(expiresAt) {
		return nil, ErrNotFound
	}

	if doc.Valid {
		var d model.ExamDocument
		if err := json.Unmarshal([]byte(doc.String), &d); err != nil {
			return nil, fmt.Errorf("decode document of session %s: %w", id, err)
		}
		sess.Document = &d
	}
	if answers.Valid {
		if err := json.Unmarshal([]byte(answers.String), &sess.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of session %s: %w", id, err)
		}
	}
	sess.Restore()
	return &sess, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (*session.Session, error) {
	return getSession(s.db, id)
}

// UpdateSession loads a session, applies fn and writes the result back in one
// transaction. Each update extends the session's lifetime.
// If fn returns an error nothing is written and the error is returned.
func (s *Store) UpdateSession(id string, fn func(*session.Session) error) (*session.Session, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := getSession(tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}

	doc, answers, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(
		`UPDATE exam_sessions SET state = ?, position = ?, document = ?, answers = ?, error = ?, expires_at = ?
		 WHERE id = ?`,
		sess.State, sess.Position, doc, answers, sess.Err, now().Add(s.ttl), id,
	)
	if err != nil {
		return nil, err
	}
	return sess, tx.Commit()
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM exam_sessions WHERE id = ?`, id)
	return err
}

// CleanupExpiredSessions removes all expired sessions and returns how many were removed.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM exam_sessions WHERE expires_at < ?`, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SessionCount returns the number of stored sessions, expired or not.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exam_sessions`).Scan(&count)
	return count, err
}

func encodeSession(sess *session.Session) (doc, answers sql.NullString, err error) {
	if sess.Document != nil {
		b, err := json.Marshal(sess.Document)
		if err != nil {
			return doc, answers, fmt.Errorf("encode document: %w", err)
		}
		doc = sql.NullString{String: string(b), Valid: true}
	}
	if sess.Answers != nil {
		b, err := json.Marshal(sess.Answers)
		if err != nil {
			return doc, answers, fmt.Errorf("encode answers: %w", err)
		}
		answers = sql.NullString{String: string(b), Valid: true}
	}
	return doc, answers, nil
}
