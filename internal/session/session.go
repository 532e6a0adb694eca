// Package session implements the exam session state machine.
//
// A session moves loading -> ready -> in_progress -> completed. A failed
// generation moves it to error, which only Restart leaves.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examcert/internal/model"
	"github.com/pavelanni/examcert/internal/scoring"
)

// State is the lifecycle state of a session.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// ErrInvalidTransition is returned when an operation is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// Session is one learner's pass through a generated exam.
// Document and Answers are only meaningful once the session has been loaded.
type Session struct {
	ID        string
	Username  string
	Course    string
	Level     model.ExamLevel
	State     State
	Document  *model.ExamDocument
	Answers   model.AnswerSet
	Position  int
	Err       string
	CreatedAt time.Time

	questions []model.FlatQuestion
}

// New creates a session in the loading state.
func New(username, course string, level model.ExamLevel) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Username:  username,
		Course:    course,
		Level:     level,
		State:     StateLoading,
		CreatedAt: time.Now(),
	}
}

func (s *Session) transitionErr(op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, op, s.State)
}

// Load stores the generated document and prepares an empty answer set.
func (s *Session) Load(doc model.ExamDocument) error {
	if s.State != StateLoading {
		return s.transitionErr("load")
	}
	s.Document = &doc
	s.questions = model.Flatten(doc)
	s.Answers = model.NewAnswerSet(len(s.questions))
	s.Position = 0
	s.State = StateReady
	return nil
}

// Begin presents the first question.
func (s *Session) Begin() error {
	if s.State != StateReady {
		return s.transitionErr("begin")
	}
	s.Position = 0
	s.State = StateInProgress
	return nil
}

// Fail records a generation failure.
func (s *Session) Fail(err error) error {
	if s.State != StateLoading && s.State != StateReady {
		return s.transitionErr("fail")
	}
	s.State = StateError
	s.Err = err.Error()
	return nil
}

// Restart discards everything derived from the previous generation and
// re-enters loading with the same learner, course and level.
func (s *Session) Restart() {
	s.State = StateLoading
	s.Document = nil
	s.Answers = nil
	s.questions = nil
	s.Position = 0
	s.Err = ""
}

// Restore rebuilds the derived question sequence after the session was decoded
// from storage.
func (s *Session) Restore() {
	s.questions = nil
	if s.Document != nil {
		s.questions = model.Flatten(*s.Document)
	}
}

// Questions returns the flattened question sequence.
func (s *Session) Questions() []model.FlatQuestion {
	return s.questions
}

// Len returns the number of questions in the exam.
func (s *Session) Len() int {
	return len(s.questions)
}

// Current returns the question at the current position.
func (s *Session) Current() (model.FlatQuestion, bool) {
	if s.State != StateInProgress || s.Position >= len(s.questions) {
		return model.FlatQuestion{}, false
	}
	return s.questions[s.Position], true
}

// CurrentAnswer returns what has been recorded for the current question.
func (s *Session) CurrentAnswer() (string, bool) {
	return s.Answers.Get(s.Position)
}

// IsLast reports whether the current question is the final one.
func (s *Session) IsLast() bool {
	return s.Position >= len(s.questions)-1
}

// RecordAnswer stores value at the current position, replacing any earlier answer.
// The value is not checked against the question type.
func (s *Session) RecordAnswer(value string) error {
	if s.State != StateInProgress {
		return s.transitionErr("record answer")
	}
	if s.Position < len(s.Answers) {
		s.Answers[s.Position] = &value
	}
	return nil
}

// Advance moves to the next question, or completes the session after the last one.
func (s *Session) Advance() error {
	if s.State != StateInProgress {
		return s.transitionErr("advance")
	}
	if s.Position < len(s.questions)-1 {
		s.Position++
		return nil
	}
	s.State = StateCompleted
	return nil
}

// Result returns the document and final answers of a completed session.
func (s *Session) Result() (model.ExamDocument, model.AnswerSet, error) {
	if s.State != StateCompleted || s.Document == nil {
		return model.ExamDocument{}, nil, s.transitionErr("result")
	}
	return *s.Document, s.Answers, nil
}

// Score runs the scoring engine on a completed session.
func (s *Session) Score() (model.ScoreBreakdown, error) {
	doc, answers, err := s.Result()
	if err != nil {
		return model.ScoreBreakdown{}, err
	}
	return scoring.Score(doc, answers), nil
}
