// Package assistant produces short in-character replies through an
// OpenAI-compatible chat completions API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
	"github.com/chainsafe/mintwatch/pkg/config"
)

const (
	maxPromptRunes = 500
	maxBodyBytes   = 1 << 20
	source         = "assistant"

	// FallbackReply is returned whenever the upstream cannot answer.
	FallbackReply = "My crystal ball is cloudy right now. Ask me again in a bit."

	persona = "You are mintwatch, a friendly on-chain assistant living in the %s community. " +
		"Answer in at most three short sentences. Never give financial advice."
)

var errEmptyReply = errors.New("empty completion")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls the chat completions endpoint.
type Client struct {
	http      *http.Client
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewClient creates an assistant client from cfg.
func NewClient(cfg config.AssistantConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    source,
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		logger: logger,
	}
}

// Truncate limits prompt to the accepted number of runes.
func Truncate(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	runes := []rune(prompt)
	if len(runes) <= maxPromptRunes {
		return prompt
	}
	return string(runes[:maxPromptRunes])
}

// Reply answers prompt in the persona of the community's bot. It never
// fails; upstream problems yield FallbackReply.
func (c *Client) Reply(ctx context.Context, guildName, prompt string) string {
	prompt = Truncate(prompt)
	if prompt == "" {
		return FallbackReply
	}
	if guildName == "" {
		guildName = "this"
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.complete(ctx, guildName, prompt)
	})
	if err != nil {
		metrics.ExternalRequests.WithLabelValues(source, "error").Inc()
		c.logger.Warn("Assistant request failed", zap.Error(err))
		return FallbackReply
	}
	metrics.ExternalRequests.WithLabelValues(source, "ok").Inc()
	return out.(string)
}

func (c *Client) complete(ctx context.Context, guildName, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(persona, guildName)},
			{Role: "user", Content: prompt},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", fmt.Errorf("completion returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", errEmptyReply
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
