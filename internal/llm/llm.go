package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examcert/internal/llm/prompts"
	"github.com/pavelanni/examcert/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Generation failures. Every error returned by Generate wraps exactly one of these.
var (
	ErrUpstream      = errors.New("upstream error")
	ErrEmptyResponse = errors.New("empty response")
	ErrInvalidFormat = errors.New("invalid format")
)

// DefaultTemperature is the sampling temperature used for exam generation.
const DefaultTemperature = 0.7

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	// JSONMode asks the endpoint for a JSON object response. Some
	// OpenAI-compatible servers do not support it.
	JSONMode bool
	Prompts  *prompts.Set
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	jsonMode    bool
	prompts     *prompts.Set
}

// New creates a new LLM client. A nil Prompts uses the built-in templates.
func New(opts Options) (*Client, error) {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	set := opts.Prompts
	if set == nil {
		var err error
		if set, err = prompts.Default(); err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       opts.Model,
		temperature: opts.Temperature,
		jsonMode:    opts.JSONMode,
		prompts:     set,
	}, nil
}

// Ping checks that the endpoint is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Generate asks the model for an exam on course at level and decodes the reply.
// The call is made once; failures are not retried.
func (c *Client) Generate(ctx context.Context, course string, level model.ExamLevel) (*model.ExamDocument, error) {
	prompt, err := c.prompts.Build(course, level)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: LLM API call: %v", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: LLM returned no choices", ErrEmptyResponse)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: no response from LLM", ErrEmptyResponse)
	}

	doc, err := DecodeExam([]byte(raw))
	if err != nil {
		return nil, err
	}

	if !level.HasScenarios() && len(doc.Scenario) > 0 {
		slog.Warn("dropping scenario questions returned for beginner exam", "count", len(doc.Scenario))
		doc.Scenario = nil
	}
	if !doc.MatchesBlueprint(level) {
		b := model.BlueprintFor(level)
		slog.Warn("generated exam does not match blueprint",
			"level", level,
			"quiz", len(doc.Quiz), "want_quiz", b.Quiz,
			"theory", len(doc.Theory), "want_theory", b.Theory,
			"scenario", len(doc.Scenario), "want_scenario", b.Scenario,
		)
	}
	return doc, nil
}

// DecodeExam parses generated text into an ExamDocument.
//
// The top level must be an object whose "quiz" and "theory" members are
// non-empty arrays of question objects; "scenario", when present and not
// null, must be an array too. Individual items are not checked beyond their
// JSON types: a quiz item without options or correctAnswer is accepted and
// can never be scored correct.
func DecodeExam(raw []byte) (*model.ExamDocument, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: parse LLM response: %v", ErrInvalidFormat, err)
	}

	var doc model.ExamDocument
	var err error
	if doc.Quiz, err = decodeList(top, "quiz", true); err != nil {
		return nil, err
	}
	if doc.Theory, err = decodeList(top, "theory", true); err != nil {
		return nil, err
	}
	if doc.Scenario, err = decodeList(top, "scenario", false); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeList(top map[string]json.RawMessage, key string, required bool) ([]model.Question, error) {
	msg, ok := top[key]
	if !ok || bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		if required {
			return nil, fmt.Errorf("%w: missing %q list", ErrInvalidFormat, key)
		}
		return nil, nil
	}
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %q is not a list", ErrInvalidFormat, key)
	}

	var qs []model.Question
	if err := json.Unmarshal(trimmed, &qs); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", ErrInvalidFormat, key, err)
	}
	if required && len(qs) == 0 {
		return nil, fmt.Errorf("%w: %q list is empty", ErrInvalidFormat, key)
	}
	return qs, nil
}
