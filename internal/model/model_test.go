package model

import "testing"

func strPtr(s string) *string { return &s }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    ExamLevel
		wantErr bool
	}{
		{"beginner", LevelBeginner, false},
		{"Intermediate", LevelIntermediate, false},
		{" advanced ", LevelAdvanced, false},
		{"expert", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBlueprintFor(t *testing.T) {
	tests := []struct {
		level                    ExamLevel
		quiz, theory, scenario   int
		hasScenarios, complexSce bool
	}{
		{LevelBeginner, 5, 1, 0, false, false},
		{LevelIntermediate, 10, 1, 1, true, false},
		{LevelAdvanced, 10, 2, 1, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			b := BlueprintFor(tt.level)
			if b.Quiz != tt.quiz || b.Theory != tt.theory || b.Scenario != tt.scenario {
				t.Errorf("BlueprintFor(%s) = %+v", tt.level, b)
			}
			if b.Total() != tt.quiz+tt.theory+tt.scenario {
				t.Errorf("Total() = %d", b.Total())
			}
			if tt.level.HasScenarios() != tt.hasScenarios {
				t.Errorf("HasScenarios() = %v, want %v", tt.level.HasScenarios(), tt.hasScenarios)
			}
			if b.ComplexScenario != tt.complexSce {
				t.Errorf("ComplexScenario = %v, want %v", b.ComplexScenario, tt.complexSce)
			}
		})
	}
}

func TestFlattenOrder(t *testing.T) {
	doc := ExamDocument{
		Quiz:     []Question{{Question: "q1"}, {Question: "q2"}},
		Theory:   []Question{{Question: "t1"}},
		Scenario: []Question{{Question: "s1", Context: "ctx"}},
	}
	flat := Flatten(doc)
	if len(flat) != doc.Len() {
		t.Fatalf("len(Flatten) = %d, want %d", len(flat), doc.Len())
	}
	want := []struct {
		text string
		cat  Category
	}{
		{"q1", CategoryQuiz},
		{"q2", CategoryQuiz},
		{"t1", CategoryTheory},
		{"s1", CategoryScenario},
	}
	for i, w := range want {
		if flat[i].Question.Question != w.text || flat[i].Category != w.cat || flat[i].Position != i {
			t.Errorf("flat[%d] = %+v, want %s/%s", i, flat[i], w.text, w.cat)
		}
	}
	if flat[3].Context != "ctx" {
		t.Errorf("scenario context lost: %q", flat[3].Context)
	}
}

func TestMatchesBlueprint(t *testing.T) {
	doc := ExamDocument{
		Quiz:   make([]Question, 5),
		Theory: make([]Question, 1),
	}
	if !doc.MatchesBlueprint(LevelBeginner) {
		t.Error("5 quiz + 1 theory should match beginner")
	}
	if doc.MatchesBlueprint(LevelIntermediate) {
		t.Error("5 quiz + 1 theory should not match intermediate")
	}
}

func TestAnswerSet(t *testing.T) {
	a := NewAnswerSet(3)
	if a.Answered() != 0 {
		t.Fatalf("new set has %d answers", a.Answered())
	}
	a[1] = strPtr("")
	if v, ok := a.Get(1); !ok || v != "" {
		t.Errorf("Get(1) = %q, %v; want empty answer", v, ok)
	}
	if _, ok := a.Get(0); ok {
		t.Error("Get(0) should be unanswered")
	}
	if _, ok := a.Get(7); ok {
		t.Error("Get out of range should be unanswered")
	}
	if a.Answered() != 1 {
		t.Errorf("Answered() = %d, want 1", a.Answered())
	}
}

func TestCategoryScorePercent(t *testing.T) {
	if p := (CategoryScore{Earned: 15, Possible: 30}).Percent(); p != 50 {
		t.Errorf("Percent() = %v, want 50", p)
	}
	if p := (CategoryScore{}).Percent(); p != 0 {
		t.Errorf("Percent() of empty = %v, want 0", p)
	}
}
