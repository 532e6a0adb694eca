package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/examcert/internal/model"
	"github.com/pavelanni/examcert/internal/session"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := New(":memory:", ttl)
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func testDoc() model.ExamDocument {
	return model.ExamDocument{
		Quiz: []model.Question{
			{Question: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: strPtr("4")},
			{Question: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: strPtr("Paris")},
		},
		Theory:   []model.Question{{Question: "Explain channels."}},
		Scenario: []model.Question{{Context: "A deadlock in production", Question: "What do you do?"}},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t, time.Hour)

	sess := session.New("Ada", "Go", model.LevelIntermediate)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Username != "Ada" || got.Course != "Go" || got.Level != model.LevelIntermediate {
		t.Errorf("got %+v", got)
	}
	if got.State != session.StateLoading {
		t.Errorf("State = %s, want loading", got.State)
	}
	if got.Document != nil || got.Answers != nil {
		t.Errorf("loading session should have no document or answers")
	}

	_, err = s.GetSession("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSession(t *testing.T) {
	s := newTestStore(t, time.Hour)

	sess := session.New("Ada", "Go", model.LevelIntermediate)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err := s.UpdateSession(sess.ID, func(ss *session.Session) error {
		if err := ss.Load(testDoc()); err != nil {
			return err
		}
		if err := ss.Begin(); err != nil {
			return err
		}
		if err := ss.RecordAnswer("4"); err != nil {
			return err
		}
		return ss.Advance()
	})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != session.StateInProgress || got.Position != 1 {
		t.Errorf("state=%s position=%d, want in_progress/1", got.State, got.Position)
	}
	if got.Len() != 4 {
		t.Errorf("Len() = %d, want 4", got.Len())
	}
	if v, ok := got.Answers.Get(0); !ok || v != "4" {
		t.Errorf("answer 0 = %q, %v", v, ok)
	}
	if _, ok := got.Answers.Get(1); ok {
		t.Error("answer 1 should be unanswered")
	}
	q, ok := got.Current()
	if !ok || q.Question.Question != "Capital of France?" {
		t.Errorf("Current() = %+v, %v", q, ok)
	}
	if got.Document.Scenario[0].Context != "A deadlock in production" {
		t.Errorf("scenario context lost: %+v", got.Document.Scenario)
	}
}

func TestUpdateSessionErrorDiscardsChanges(t *testing.T) {
	s := newTestStore(t, time.Hour)

	sess := session.New("Ada", "Go", model.LevelBeginner)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	_, err := s.UpdateSession(sess.ID, func(ss *session.Session) error {
		ss.Username = "changed"
		return ss.Advance()
	})
	if !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != session.StateLoading {
		t.Errorf("State = %s, want loading", got.State)
	}

	if _, err := s.UpdateSession("missing", func(*session.Session) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFailedSessionKeepsError(t *testing.T) {
	s := newTestStore(t, time.Hour)

	sess := session.New("Ada", "Go", model.LevelBeginner)
	_ = sess.Fail(errors.New("invalid format: missing \"quiz\" list"))
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != session.StateError || got.Err != sess.Err {
		t.Errorf("state=%s err=%q", got.State, got.Err)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t, time.Hour)
	sess := session.New("Ada", "Go", model.LevelBeginner)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.DeleteSession(sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestExpiredSessions(t *testing.T) {
	s := newTestStore(t, time.Millisecond)

	sess := session.New("Ada", "Go", model.LevelBeginner)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := s.GetSession(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}

	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d sessions, want 1", n)
	}
	count, err := s.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("SessionCount = %d, want 0", count)
	}
}

func TestFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := New(path, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	sess := session.New("Ada", "Go", model.LevelAdvanced)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.GetSession(sess.ID); err != nil {
		t.Errorf("GetSession: %v", err)
	}
}
