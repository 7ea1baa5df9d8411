package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"uniconnect/internal/config"
	"uniconnect/internal/models"
)

// Completer is the completion capability: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client calls the configured completion model with the engine's provider
// policy: per-attempt timeout and bounded exponential backoff. Content
// policy rejections are surfaced as-is and never retried.
type Client struct {
	llm      llms.Model
	retryCfg config.RetryConfig
}

func NewClient(llmCfg *config.LLMConfig, retryCfg config.RetryConfig) (*Client, error) {
	llm, err := newModel(llmCfg)
	if err != nil {
		return nil, err
	}
	return &Client{llm: llm, retryCfg: retryCfg}, nil
}

func newModel(llmCfg *config.LLMConfig) (llms.Model, error) {
	switch llmCfg.Provider {
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(llmCfg.BaseURL),
			ollama.WithModel(llmCfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmCfg.Key, "Bearer ")),
			openai.WithModel(llmCfg.Model),
		}
		if llmCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmCfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", llmCfg.Provider)
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	text, err := retry.DoWithData(func() (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.retryCfg.Timeout())
		defer cancel()

		res, err := c.llm.GenerateContent(attemptCtx, messages)
		if err != nil {
			if isRejection(err) {
				return "", retry.Unrecoverable(fmt.Errorf("%w: %v", models.ErrCompletionRejected, err))
			}
			return "", err
		}
		if len(res.Choices) == 0 {
			return "", fmt.Errorf("completion returned no choices")
		}
		return res.Choices[0].Content, nil
	},
		retry.Context(ctx),
		retry.Attempts(c.retryCfg.Attempts),
		retry.Delay(c.retryCfg.Delay()),
		retry.MaxDelay(c.retryCfg.MaxDelay()),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, models.ErrCompletionRejected) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", models.ErrCompletionUnavailable, err)
	}
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(text, "")), nil
}

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// isRejection classifies provider errors caused by content policy. The
// langchaingo clients only expose the provider message, so this matches on
// the phrasings OpenAI-compatible backends use.
func isRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "content management policy") ||
		strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "flagged")
}
