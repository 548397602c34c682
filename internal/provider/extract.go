package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/go-resty/resty/v2"
)

// ExtractionClient calls an OpenAI-compatible chat-completions API to turn
// unstructured text (search snippets, pasted criteria) into structured JSON.
type ExtractionClient struct {
	client   *resty.Client
	endpoint string
	model    string
}

// NewExtractionClient creates an ExtractionClient from configuration.
func NewExtractionClient(cfg *config.ExtractionProviderConfig) *ExtractionClient {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	return &ExtractionClient{
		client:   client,
		endpoint: cfg.BaseURL + "/chat/completions",
		model:    cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete runs one chat completion and returns the raw text of the first
// choice.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - system: system prompt framing the extraction task.
//   - user: the text to extract from.
// Returns:
//   - string: model output text.
//   - error: transient, rate-limited, or permanent per the response.
func (c *ExtractionClient) Complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var result chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(c.endpoint)

	if err != nil {
		return "", domain.Transient("extraction", err)
	}
	if err := classifyResponse("extraction", resp); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", domain.Transient("extraction", errEmptyCompletion)
	}
	return result.Choices[0].Message.Content, nil
}

// ExtractJSON runs a completion expected to yield a JSON object and
// unmarshals it into out. Markdown code fences around the object are
// stripped first; output that still fails to parse is a permanent error
// because retrying the same prompt tends to reproduce it.
func (c *ExtractionClient) ExtractJSON(ctx context.Context, system, user string, out interface{}) error {
	text, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return domain.Permanent("extraction", err)
	}
	return nil
}

var errEmptyCompletion = errors.New("completion returned no choices")
