package session

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pavelanni/examcert/internal/model"
)

func strPtr(s string) *string { return &s }

func testDoc(quiz, theory, scenario int) model.ExamDocument {
	var doc model.ExamDocument
	for i := 0; i < quiz; i++ {
		doc.Quiz = append(doc.Quiz, model.Question{
			Question:      fmt.Sprintf("quiz %d", i),
			Options:       []string{"A", "B"},
			CorrectAnswer: strPtr("A"),
		})
	}
	for i := 0; i < theory; i++ {
		doc.Theory = append(doc.Theory, model.Question{Question: fmt.Sprintf("theory %d", i)})
	}
	for i := 0; i < scenario; i++ {
		doc.Scenario = append(doc.Scenario, model.Question{Question: fmt.Sprintf("scenario %d", i), Context: "ctx"})
	}
	return doc
}

func startedSession(t *testing.T, doc model.ExamDocument) *Session {
	t.Helper()
	s := New("Ada", "Go", model.LevelBeginner)
	if err := s.Load(doc); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return s
}

func TestNewSession(t *testing.T) {
	s := New("Ada", "Go", model.LevelIntermediate)
	if s.State != StateLoading {
		t.Errorf("State = %s, want loading", s.State)
	}
	if s.ID == "" {
		t.Error("ID should be set")
	}
	if other := New("Ada", "Go", model.LevelIntermediate); other.ID == s.ID {
		t.Error("IDs should be unique")
	}
}

func TestLoadBuildsSequence(t *testing.T) {
	tests := []struct {
		name                   string
		quiz, theory, scenario int
	}{
		{"beginner", 5, 1, 0},
		{"intermediate", 10, 1, 1},
		{"advanced", 10, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("Ada", "Go", model.ExamLevel(tt.name))
			if err := s.Load(testDoc(tt.quiz, tt.theory, tt.scenario)); err != nil {
				t.Fatalf("Load: %v", err)
			}
			want := tt.quiz + tt.theory + tt.scenario
			if s.State != StateReady {
				t.Errorf("State = %s, want ready", s.State)
			}
			if s.Len() != want {
				t.Errorf("Len() = %d, want %d", s.Len(), want)
			}
			if len(s.Answers) != want || s.Answers.Answered() != 0 {
				t.Errorf("Answers = %v, want %d empty slots", s.Answers, want)
			}
			qs := s.Questions()
			if qs[0].Category != model.CategoryQuiz || qs[tt.quiz].Category != model.CategoryTheory {
				t.Errorf("unexpected order: %+v", qs)
			}
			if tt.scenario > 0 && qs[want-1].Category != model.CategoryScenario {
				t.Errorf("last question should be a scenario, got %s", qs[want-1].Category)
			}
		})
	}
}

func TestAdvanceIsMonotonicAndCompletes(t *testing.T) {
	s := startedSession(t, testDoc(5, 1, 0))
	n := s.Len()

	prev := s.Position
	for i := 0; i < n; i++ {
		if s.State != StateInProgress {
			t.Fatalf("completed early after %d advances", i)
		}
		if err := s.Advance(); err != nil {
			t.Fatalf("Advance #%d: %v", i+1, err)
		}
		if s.Position < prev {
			t.Fatalf("position decreased from %d to %d", prev, s.Position)
		}
		prev = s.Position
	}
	if s.State != StateCompleted {
		t.Fatalf("State = %s after %d advances, want completed", s.State, n)
	}
	if s.Position != n-1 {
		t.Errorf("Position = %d, want %d", s.Position, n-1)
	}
	if err := s.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance after completion: err = %v, want ErrInvalidTransition", err)
	}
}

func TestRecordAnswerOverwrites(t *testing.T) {
	s := startedSession(t, testDoc(2, 1, 0))

	if err := s.RecordAnswer("B"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := s.RecordAnswer("A"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if s.Position != 0 {
		t.Errorf("RecordAnswer moved position to %d", s.Position)
	}
	if got, ok := s.CurrentAnswer(); !ok || got != "A" {
		t.Errorf("CurrentAnswer() = %q, %v; want A", got, ok)
	}

	_ = s.Advance()
	q, ok := s.Current()
	if !ok || q.Position != 1 {
		t.Fatalf("Current() = %+v, %v", q, ok)
	}
	if _, ok := s.CurrentAnswer(); ok {
		t.Error("second question should start unanswered")
	}
}

func TestRecordAnswerAcceptsAnyText(t *testing.T) {
	s := startedSession(t, testDoc(1, 1, 0))
	if err := s.RecordAnswer("not one of the options"); err != nil {
		t.Errorf("RecordAnswer rejected free text on a quiz item: %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := New("Ada", "Go", model.LevelBeginner)
	if err := s.Begin(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Begin in loading: %v", err)
	}
	if err := s.RecordAnswer("x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("RecordAnswer in loading: %v", err)
	}
	if err := s.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance in loading: %v", err)
	}
	if _, err := s.Score(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Score in loading: %v", err)
	}

	started := startedSession(t, testDoc(1, 1, 0))
	if err := started.Load(testDoc(1, 1, 0)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Load in progress: %v", err)
	}
	if err := started.Fail(errors.New("boom")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail in progress: %v", err)
	}
}

func TestFailAndRestart(t *testing.T) {
	s := New("Ada", "Go", model.LevelBeginner)
	if err := s.Fail(errors.New("upstream error: timeout")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if s.State != StateError || s.Err != "upstream error: timeout" {
		t.Fatalf("after Fail: state=%s err=%q", s.State, s.Err)
	}
	if err := s.Load(testDoc(1, 1, 0)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Load in error state should fail, got %v", err)
	}

	s.Restart()
	if s.State != StateLoading || s.Err != "" {
		t.Fatalf("after Restart: state=%s err=%q", s.State, s.Err)
	}
	if err := s.Load(testDoc(1, 1, 0)); err != nil {
		t.Fatalf("Load after restart: %v", err)
	}

	ready := New("Ada", "Go", model.LevelBeginner)
	_ = ready.Load(testDoc(1, 1, 0))
	if err := ready.Fail(errors.New("late failure")); err != nil {
		t.Errorf("Fail from ready: %v", err)
	}
}

func TestScoreCompletedSession(t *testing.T) {
	s := startedSession(t, testDoc(5, 1, 0))
	answers := []string{"A", "A", "A", "B", "B", strings.Repeat("t", 60)}
	for _, a := range answers {
		if err := s.RecordAnswer(a); err != nil {
			t.Fatalf("RecordAnswer: %v", err)
		}
		if err := s.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	b, err := s.Score()
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if b.Total != 54 {
		t.Errorf("Total = %d, want 54", b.Total)
	}
}

func TestRestoreRebuildsQuestions(t *testing.T) {
	s := startedSession(t, testDoc(2, 1, 1))
	decoded := &Session{
		ID:       s.ID,
		State:    s.State,
		Document: s.Document,
		Answers:  s.Answers,
		Position: s.Position,
	}
	decoded.Restore()
	if decoded.Len() != 4 {
		t.Errorf("Len() after Restore = %d, want 4", decoded.Len())
	}
	if q, ok := decoded.Current(); !ok || q.Question.Question != "quiz 0" {
		t.Errorf("Current() after Restore = %+v, %v", q, ok)
	}
}
