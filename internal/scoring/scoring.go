// Package scoring computes the weighted score of a completed exam.
package scoring

import (
	"math"
	"unicode/utf8"

	"github.com/pavelanni/examcert/internal/model"
)

// Category maxima in points. They add up to 100.
const (
	QuizPoints     = 40.0
	TheoryPoints   = 30.0
	ScenarioPoints = 30.0
)

// Minimum answer lengths, in characters, for free-text answers to count.
// An answer must be strictly longer than the threshold.
const (
	TheoryMinLength   = 50
	ScenarioMinLength = 100
)

// Score computes the breakdown for doc and answers. It has no side effects.
// Answers are matched to questions by flattened position; positions missing
// from answers count as unanswered.
func Score(doc model.ExamDocument, answers model.AnswerSet) model.ScoreBreakdown {
	var (
		quiz     = model.CategoryScore{Category: model.CategoryQuiz, Items: len(doc.Quiz), Possible: QuizPoints}
		theory   = model.CategoryScore{Category: model.CategoryTheory, Items: len(doc.Theory), Possible: TheoryPoints}
		scenario = model.CategoryScore{Category: model.CategoryScenario, Items: len(doc.Scenario), Possible: ScenarioPoints}
	)

	for _, q := range model.Flatten(doc) {
		answer, ok := answers.Get(q.Position)
		switch q.Category {
		case model.CategoryQuiz:
			if ok && q.CorrectAnswer != nil && answer == *q.CorrectAnswer {
				quiz.Credited++
			}
		case model.CategoryTheory:
			if ok && utf8.RuneCountInString(answer) > TheoryMinLength {
				theory.Credited++
			}
		case model.CategoryScenario:
			if ok && utf8.RuneCountInString(answer) > ScenarioMinLength {
				scenario.Credited++
			}
		}
	}

	if quiz.Items > 0 {
		quiz.Earned = float64(quiz.Credited) / float64(quiz.Items) * QuizPoints
	}
	theory.Earned = float64(theory.Credited) * itemWeight(TheoryPoints, theory.Items)
	scenario.Earned = float64(scenario.Credited) * itemWeight(ScenarioPoints, scenario.Items)

	var b model.ScoreBreakdown
	for _, cs := range []model.CategoryScore{quiz, theory, scenario} {
		if cs.Items == 0 {
			continue
		}
		b.Categories = append(b.Categories, cs)
		b.Raw += cs.Earned
	}
	b.Total = int(math.Round(b.Raw))
	return b
}

// itemWeight splits points evenly across n items. A single item is worth all of them.
func itemWeight(points float64, n int) float64 {
	if n <= 1 {
		return points
	}
	return points / float64(n)
}
