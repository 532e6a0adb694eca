package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "AI-Powered Exam System" {
		t.Errorf("T(AppTitle) = %q, want 'AI-Powered Exam System'", got)
	}

	got = T(ctx, "StartExam")
	if got != "Start Exam" {
		t.Errorf("T(StartExam) = %q, want 'Start Exam'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "StartExam")
	if got != "Начать экзамен" {
		t.Errorf("T(StartExam) = %q, want 'Начать экзамен'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsCredited", 1)
	if got1 != "1 question credited" {
		t.Errorf("Tp(QuestionsCredited, 1) = %q", got1)
	}

	got5 := Tp(ctx, "QuestionsCredited", 5)
	if got5 != "5 questions credited" {
		t.Errorf("Tp(QuestionsCredited, 5) = %q", got5)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "QuestionsCredited", 5); got != "засчитано 5 вопросов" {
		t.Errorf("Tp(ru, QuestionsCredited, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionNofM", map[string]any{"N": 3, "Total": 12})
	if got != "Question 3 of 12" {
		t.Errorf("Td(QuestionNofM) = %q, want 'Question 3 of 12'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestFallbackToDefault(t *testing.T) {
	ctx := initLang(t, "de")
	if got := T(ctx, "StartExam"); got != "Start Exam" {
		t.Errorf("unsupported language should fall back to English, got %q", got)
	}
}

func TestSupported(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for lang, want := range map[string]bool{"en": true, "ru": true, "de": false, "%%": false} {
		if got := Supported(lang); got != want {
			t.Errorf("Supported(%q) = %v, want %v", lang, got, want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(T(r.Context(), "StartExam")))
	}))

	tests := []struct {
		name   string
		target string
		header string
		cookie string
		want   string
	}{
		{"default", "/", "", "", "Start Exam"},
		{"accept-language", "/", "ru-RU,ru;q=0.9", "", "Начать экзамен"},
		{"query wins", "/?lang=en", "ru", "", "Start Exam"},
		{"cookie", "/", "", "ru", "Начать экзамен"},
		{"unsupported query ignored", "/?lang=xx", "ru", "", "Начать экзамен"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}
