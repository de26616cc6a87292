// Package llm is the optional Gemini fallback for buyer messages no
// auto-response rule matches.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	modelName = "gemini-1.5-flash"

	// MaxReplyLength caps generated replies well below the marketplace
	// message limit.
	MaxReplyLength = 2000

	promptTemplate = `Ты — вежливый помощник продавца на торговой площадке FunPay.
Покупатель написал сообщение, на которое не нашлось готового ответа.
Ответь коротко и по делу, на языке покупателя. Не обещай ничего конкретного
о сроках и ценах, не выдумывай товары. Если вопрос требует продавца,
ответь, что продавец скоро подключится.

Сообщение покупателя:
%s`
)

// Client represents a Gemini LLM client
type Client struct {
	apiKey      string
	timeout     time.Duration
	logger      zerolog.Logger
	genaiClient *genai.Client
	mu          sync.Mutex
}

// NewClient creates a new Gemini LLM client
func NewClient(apiKey string, timeout int, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:      apiKey,
		timeout:     time.Duration(timeout) * time.Second,
		logger:      logger.With().Str("component", "llm").Logger(),
		genaiClient: nil, // Will be created on first use
	}
}

// getClient returns or creates a genai client (thread-safe)
func (c *Client) getClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genaiClient != nil {
		return c.genaiClient, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c.genaiClient = client
	c.logger.Info().Msg("Gemini client created and cached")
	return c.genaiClient, nil
}

// Close closes the LLM client and releases resources
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genaiClient != nil {
		err := c.genaiClient.Close()
		c.genaiClient = nil
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to close Gemini client")
			return err
		}
		c.logger.Info().Msg("Gemini client closed")
	}
	return nil
}

// Reply generates a fallback reply to a buyer message.
func (c *Client) Reply(ctx context.Context, buyerMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxRetries := 2
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying LLM request")

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := c.generate(ctx, buyerMessage)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Error().
			Err(err).
			Int("attempt", attempt+1).
			Msg("LLM request failed")
	}
	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}

// generate makes actual API call to Gemini
func (c *Client) generate(ctx context.Context, buyerMessage string) (string, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetMaxOutputTokens(1024)

	prompt := fmt.Sprintf(promptTemplate, buyerMessage)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response candidates from LLM")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content parts in response")
	}

	var responseText strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	text := strings.TrimSpace(responseText.String())
	if runes := []rune(text); len(runes) > MaxReplyLength {
		text = string(runes[:MaxReplyLength])
		c.logger.Warn().
			Int("original_length", len(runes)).
			Msg("Reply truncated to message limit")
	}

	c.logger.Info().
		Int("response_length", len([]rune(text))).
		Msg("LLM reply generated")
	return text, nil
}
