package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExamLevel represents the difficulty level chosen by the learner.
type ExamLevel string

const (
	LevelBeginner     ExamLevel = "beginner"
	LevelIntermediate ExamLevel = "intermediate"
	LevelAdvanced     ExamLevel = "advanced"
)

// Levels returns all supported levels in display order.
func Levels() []ExamLevel {
	return []ExamLevel{LevelBeginner, LevelIntermediate, LevelAdvanced}
}

// ParseLevel converts user input into an ExamLevel.
func ParseLevel(s string) (ExamLevel, error) {
	l := ExamLevel(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return l, nil
	}
	return "", fmt.Errorf("unknown level %q (want beginner, intermediate or advanced)", s)
}

// Blueprint holds the fixed question counts for a level.
type Blueprint struct {
	Quiz            int
	Theory          int
	Scenario        int
	ComplexScenario bool
}

// Total returns the number of questions an exam of this blueprint contains.
func (b Blueprint) Total() int {
	return b.Quiz + b.Theory + b.Scenario
}

var blueprints = map[ExamLevel]Blueprint{
	LevelBeginner:     {Quiz: 5, Theory: 1},
	LevelIntermediate: {Quiz: 10, Theory: 1, Scenario: 1},
	LevelAdvanced:     {Quiz: 10, Theory: 2, Scenario: 1, ComplexScenario: true},
}

// BlueprintFor returns the question counts for a level.
// Unknown levels get a zero Blueprint.
func BlueprintFor(l ExamLevel) Blueprint {
	return blueprints[l]
}

// HasScenarios reports whether exams of this level carry scenario questions.
func (l ExamLevel) HasScenarios() bool {
	return blueprints[l].Scenario > 0
}

// Category is the kind of a question inside an exam.
type Category string

const (
	CategoryQuiz     Category = "quiz"
	CategoryTheory   Category = "theory"
	CategoryScenario Category = "scenario"
)

// Question is a single exam item as produced by the generator.
// Options and CorrectAnswer are only set for quiz items, Context only for scenarios.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer *string  `json:"correctAnswer,omitempty"`
	Context       string   `json:"context,omitempty"`
}

// ExamDocument is the generated exam. It is not modified after generation.
type ExamDocument struct {
	Quiz     []Question `json:"quiz"`
	Theory   []Question `json:"theory"`
	Scenario []Question `json:"scenario,omitempty"`
}

// Len returns the total number of questions in the document.
func (d ExamDocument) Len() int {
	return len(d.Quiz) + len(d.Theory) + len(d.Scenario)
}

// MatchesBlueprint reports whether the document has exactly the counts of the level.
func (d ExamDocument) MatchesBlueprint(l ExamLevel) bool {
	b := BlueprintFor(l)
	return len(d.Quiz) == b.Quiz && len(d.Theory) == b.Theory && len(d.Scenario) == b.Scenario
}

// FlatQuestion is a question tagged with its category and position in the exam.
type FlatQuestion struct {
	Question
	Category Category `json:"category"`
	Position int      `json:"position"`
}

// Flatten lays out the document as quiz, then theory, then scenario questions.
// Answers are collected by position, so this order must never change.
func Flatten(d ExamDocument) []FlatQuestion {
	out := make([]FlatQuestion, 0, d.Len())
	add := func(c Category, qs []Question) {
		for _, q := range qs {
			out = append(out, FlatQuestion{Question: q, Category: c, Position: len(out)})
		}
	}
	add(CategoryQuiz, d.Quiz)
	add(CategoryTheory, d.Theory)
	add(CategoryScenario, d.Scenario)
	return out
}

// AnswerSet holds one answer per flattened position. A nil entry is unanswered.
type AnswerSet []*string

// NewAnswerSet returns an empty answer set for n questions.
func NewAnswerSet(n int) AnswerSet {
	return make(AnswerSet, n)
}

// Get returns the answer at position i and whether one was recorded.
// Positions outside the set are reported as unanswered.
func (a AnswerSet) Get(i int) (string, bool) {
	if i < 0 || i >= len(a) || a[i] == nil {
		return "", false
	}
	return *a[i], true
}

// Answered returns the number of positions holding an answer.
func (a AnswerSet) Answered() int {
	n := 0
	for _, v := range a {
		if v != nil {
			n++
		}
	}
	return n
}

// CategoryScore is the contribution of one category to the final score.
type CategoryScore struct {
	Category Category `json:"category"`
	Items    int      `json:"items"`
	Credited int      `json:"credited"`
	Earned   float64  `json:"earned"`
	Possible float64  `json:"possible"`
}

// Percent returns the earned points as a percentage of the category maximum.
func (c CategoryScore) Percent() float64 {
	if c.Possible == 0 {
		return 0
	}
	return c.Earned / c.Possible * 100
}

// ScoreBreakdown is the result of scoring a completed exam.
type ScoreBreakdown struct {
	Categories []CategoryScore `json:"categories"`
	Raw        float64         `json:"raw"`
	Total      int             `json:"total"`
}

// Category returns the score for c, if the category was part of the exam.
func (b ScoreBreakdown) Category(c Category) (CategoryScore, bool) {
	for _, cs := range b.Categories {
		if cs.Category == c {
			return cs, true
		}
	}
	return CategoryScore{}, false
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath      string        // URL prefix for sub-path deployments (e.g. "/exam")
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	SessionTTL    time.Duration // How long an idle exam session is kept
	Lang          string        // Default UI language
	CORSOrigins   []string      // Origins allowed to call the JSON API
	RateLimit     int           // Generation requests per client per RateWindow; 0 disables
	RateWindow    time.Duration
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
