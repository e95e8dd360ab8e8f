package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/drill/internal/llm/prompts"
	"github.com/pavelanni/drill/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyExplanation is returned when the model answers with no text.
var ErrEmptyExplanation = errors.New("LLM returned an empty explanation")

// Client wraps an OpenAI-compatible API client that explains questions.
type Client struct {
	api   *openai.Client
	model string
	style prompts.Style
}

// New creates a new LLM client. An unknown style is rejected.
func New(baseURL, apiKey, modelName, style string) (*Client, error) {
	if !prompts.IsValidStyle(style) {
		return nil, fmt.Errorf("invalid explain style %q", style)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		style: prompts.Style(style),
	}, nil
}

// Ping checks that the endpoint is reachable and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("model not listed by endpoint", "model", c.model, "available", len(list.Models))
	return nil
}

// Explain asks the model why the correct answer of q is correct.
// selected is the learner's answer, or nil when the question is unanswered.
func (c *Client) Explain(ctx context.Context, q model.Question, selected []int, lang string) (string, error) {
	prompt, err := prompts.BuildExplainPrompt(c.style, q, selected, lang)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM explanation", "question_id", q.ID, "style", c.style, "chars", len(text))
	if text == "" {
		return "", ErrEmptyExplanation
	}
	return text, nil
}
