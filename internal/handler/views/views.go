// Package views renders the exam pages as templ components.
package views

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examcert/internal/i18n"
	"github.com/pavelanni/examcert/internal/model"
)

// StartForm holds the values of the start form, echoed back on validation errors.
type StartForm struct {
	Username string
	Course   string
	Level    string
}

// QuestionView is the data for one question card.
type QuestionView struct {
	Number    int
	Total     int
	Question  model.FlatQuestion
	Answer    string
	HasAnswer bool
	IsLast    bool
}

// ResultsView is the data for the results page.
type ResultsView struct {
	Username  string
	Course    string
	Level     model.ExamLevel
	Breakdown model.ScoreBreakdown
}

func basePathURL(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + p)
}

func optionID(i int) string { return "opt-" + strconv.Itoa(i) }

func submitMessageID(last bool) string {
	if last {
		return "FinishExam"
	}
	return "NextQuestion"
}

// categorySummary renders "Multiple Choice Questions: 24% (out of 40%)".
func categorySummary(ctx context.Context, cs model.CategoryScore) string {
	return appI18n.T(ctx, categoryMessageID(cs.Category)) + ": " + appI18n.Td(ctx, "CategoryLine", map[string]any{
		"Earned":   int(math.Round(cs.Earned)),
		"Possible": int(math.Round(cs.Possible)),
	})
}

func creditedNote(ctx context.Context, cs model.CategoryScore) string {
	return "(" + appI18n.Tp(ctx, "QuestionsCredited", cs.Credited) + ")"
}

func levelMessageID(l model.ExamLevel) string {
	s := string(l)
	if s == "" {
		return "LevelBeginner"
	}
	return "Level" + strings.ToUpper(s[:1]) + s[1:]
}

func categoryMessageID(c model.Category) string {
	s := string(c)
	return "Category" + strings.ToUpper(s[:1]) + s[1:]
}
