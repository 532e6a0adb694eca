package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/examcert/internal/llm/prompts"
	"github.com/pavelanni/examcert/internal/model"
)

const beginnerExam = `{
  "quiz": [
    {"question": "q1", "options": ["a", "b"], "correctAnswer": "a"},
    {"question": "q2", "options": ["a", "b"], "correctAnswer": "b"},
    {"question": "q3", "options": ["a", "b"], "correctAnswer": "a"},
    {"question": "q4", "options": ["a", "b"], "correctAnswer": "b"},
    {"question": "q5", "options": ["a", "b"], "correctAnswer": "a"}
  ],
  "theory": [{"question": "Explain goroutines."}]
}`

func TestDecodeExam(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  error
		quiz     int
		theory   int
		scenario int
	}{
		{name: "valid beginner", raw: beginnerExam, quiz: 5, theory: 1},
		{
			name:     "with scenario",
			raw:      `{"quiz":[{"question":"q"}],"theory":[{"question":"t"}],"scenario":[{"context":"c","question":"s"}]}`,
			quiz:     1,
			theory:   1,
			scenario: 1,
		},
		{name: "null scenario", raw: `{"quiz":[{"question":"q"}],"theory":[{"question":"t"}],"scenario":null}`, quiz: 1, theory: 1},
		{name: "missing quiz", raw: `{"theory":[{"question":"t"}]}`, wantErr: ErrInvalidFormat},
		{name: "missing theory", raw: `{"quiz":[{"question":"q"}]}`, wantErr: ErrInvalidFormat},
		{name: "quiz not a list", raw: `{"quiz":{"question":"q"},"theory":[{"question":"t"}]}`, wantErr: ErrInvalidFormat},
		{name: "theory is a string", raw: `{"quiz":[{"question":"q"}],"theory":"none"}`, wantErr: ErrInvalidFormat},
		{name: "scenario not a list", raw: `{"quiz":[{"question":"q"}],"theory":[{"question":"t"}],"scenario":"x"}`, wantErr: ErrInvalidFormat},
		{name: "empty quiz", raw: `{"quiz":[],"theory":[{"question":"t"}]}`, wantErr: ErrInvalidFormat},
		{name: "null quiz", raw: `{"quiz":null,"theory":[{"question":"t"}]}`, wantErr: ErrInvalidFormat},
		{name: "items of wrong type", raw: `{"quiz":["q1"],"theory":[{"question":"t"}]}`, wantErr: ErrInvalidFormat},
		{name: "not json", raw: "Here is your exam: ...", wantErr: ErrInvalidFormat},
		{name: "top-level array", raw: `[{"question":"q"}]`, wantErr: ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := DecodeExam([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeExam() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeExam() unexpected error: %v", err)
			}
			if len(doc.Quiz) != tt.quiz || len(doc.Theory) != tt.theory || len(doc.Scenario) != tt.scenario {
				t.Errorf("counts = %d/%d/%d, want %d/%d/%d",
					len(doc.Quiz), len(doc.Theory), len(doc.Scenario), tt.quiz, tt.theory, tt.scenario)
			}
		})
	}
}

func TestDecodeExamKeepsItemGaps(t *testing.T) {
	doc, err := DecodeExam([]byte(`{"quiz":[{"question":"no options, no answer"}],"theory":[{"question":"t"}]}`))
	if err != nil {
		t.Fatalf("DecodeExam: %v", err)
	}
	q := doc.Quiz[0]
	if q.CorrectAnswer != nil || q.Options != nil {
		t.Errorf("quiz item = %+v, want no options and no correct answer", q)
	}
}

type fakeAPI struct {
	t        *testing.T
	status   int
	content  string
	noChoice bool
	lastReq  map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/models":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
		return
	case "/v1/chat/completions":
	default:
		http.NotFound(w, r)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&f.lastReq); err != nil {
		f.t.Errorf("decode request: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
		return
	}

	choices := []map[string]any{{
		"index":         0,
		"message":       map[string]any{"role": "assistant", "content": f.content},
		"finish_reason": "stop",
	}}
	if f.noChoice {
		choices = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": choices,
	})
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:     srv.URL + "/v1",
		APIKey:      "test",
		Model:       "test-model",
		Temperature: DefaultTemperature,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGenerateSuccess(t *testing.T) {
	api := &fakeAPI{content: beginnerExam}
	c := newTestClient(t, api)

	doc, err := c.Generate(context.Background(), "Go", model.LevelBeginner)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !doc.MatchesBlueprint(model.LevelBeginner) {
		t.Errorf("doc does not match beginner blueprint: %d quiz, %d theory", len(doc.Quiz), len(doc.Theory))
	}
	if doc.Quiz[1].CorrectAnswer == nil || *doc.Quiz[1].CorrectAnswer != "b" {
		t.Errorf("correctAnswer not decoded: %+v", doc.Quiz[1])
	}

	if api.lastReq["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", api.lastReq["model"])
	}
	msgs, _ := api.lastReq["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want system + user", msgs)
	}
	sys, _ := msgs[0].(map[string]any)
	if sys["role"] != "system" || sys["content"] != prompts.SystemPrompt {
		t.Errorf("system message = %v", sys)
	}
	user, _ := msgs[1].(map[string]any)
	if content, _ := user["content"].(string); !strings.Contains(content, "5 multiple choice questions") {
		t.Errorf("user prompt = %q", content)
	}
	if rf, _ := api.lastReq["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", api.lastReq["response_format"])
	}
}

func TestGenerateDropsBeginnerScenario(t *testing.T) {
	api := &fakeAPI{content: `{"quiz":[{"question":"q"}],"theory":[{"question":"t"}],"scenario":[{"question":"s"}]}`}
	c := newTestClient(t, api)

	doc, err := c.Generate(context.Background(), "Go", model.LevelBeginner)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if doc.Scenario != nil {
		t.Errorf("beginner exam kept %d scenario questions", len(doc.Scenario))
	}

	doc, err = c.Generate(context.Background(), "Go", model.LevelIntermediate)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(doc.Scenario) != 1 {
		t.Errorf("intermediate exam lost its scenario: %+v", doc)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeAPI
		wantErr error
	}{
		{"server error", &fakeAPI{status: http.StatusInternalServerError}, ErrUpstream},
		{"unauthorized", &fakeAPI{status: http.StatusUnauthorized}, ErrUpstream},
		{"no choices", &fakeAPI{noChoice: true}, ErrEmptyResponse},
		{"empty content", &fakeAPI{content: "  "}, ErrEmptyResponse},
		{"not json", &fakeAPI{content: "Sure! Here is an exam."}, ErrInvalidFormat},
		{"missing quiz", &fakeAPI{content: `{"theory":[{"question":"t"}]}`}, ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.api)
			doc, err := c.Generate(context.Background(), "Go", model.LevelBeginner)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
			}
			if doc != nil {
				t.Errorf("Generate() returned a document on failure")
			}
			for _, other := range []error{ErrUpstream, ErrEmptyResponse, ErrInvalidFormat} {
				if other != tt.wantErr && errors.Is(err, other) {
					t.Errorf("error %v also matches %v", err, other)
				}
			}
		})
	}
}

func TestGenerateUnreachable(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1/v1", APIKey: "x", Model: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Generate(context.Background(), "Go", model.LevelAdvanced); !errors.Is(err, ErrUpstream) {
		t.Errorf("Generate() error = %v, want ErrUpstream", err)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
