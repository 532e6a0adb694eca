package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/examcert/internal/model"
)

// SystemPrompt is sent as the system message of every generation request.
const SystemPrompt = "You are a helpful exam generator that creates well-structured questions in JSON format."

// MaxCourseRunes caps the course name interpolated into a prompt.
const MaxCourseRunes = 200

//go:embed templates/*.txt
var embedded embed.FS

var tagRegex = regexp.MustCompile(`</?\s*[a-zA-Z][a-zA-Z0-9_-]*\b[^>]*>`)

// Data holds template data for generation prompts.
type Data struct {
	Course   string
	Level    model.ExamLevel
	Quiz     int
	Theory   int
	Scenario int
}

// Set holds one parsed template per exam level.
type Set struct {
	byLevel map[model.ExamLevel]*template.Template
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the templates compiled into the binary.
// They are parsed only once.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(embedded)
	})
	return defaultSet, defaultErr
}

// Load parses templates/<level>.txt from fsys for every level.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{byLevel: make(map[model.ExamLevel]*template.Template)}
	for _, l := range model.Levels() {
		name := "templates/" + string(l) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(string(l)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		s.byLevel[l] = tmpl
	}
	return s, nil
}

// Build renders the generation prompt for course at level.
func (s *Set) Build(course string, level model.ExamLevel) (string, error) {
	if s == nil || s.byLevel == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := s.byLevel[level]
	if !ok {
		return "", errors.New("no prompt template for level: " + string(level))
	}

	b := model.BlueprintFor(level)
	data := Data{
		Course:   SanitizeCourse(course),
		Level:    level,
		Quiz:     b.Quiz,
		Theory:   b.Theory,
		Scenario: b.Scenario,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeCourse strips markup and control characters from a course name,
// collapses whitespace and truncates it to MaxCourseRunes.
func SanitizeCourse(course string) string {
	course = tagRegex.ReplaceAllString(course, "")
	course = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, course)
	course = strings.Join(strings.Fields(course), " ")

	if utf8.RuneCountInString(course) > MaxCourseRunes {
		course = string([]rune(course)[:MaxCourseRunes])
	}
	return course
}
