package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docuquery/internal/service"
)

// Generator produces an answer from a question and context chunks. A
// provider outage surfaces as service.ErrProviderUnavailable so the router
// can degrade instead of propagating.
type Generator interface {
	GenerateAnswer(ctx context.Context, question string, contextChunks []string) (string, error)
}

// Client is a client for an OpenAI-compatible chat completions API.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewClient creates a new generation client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  http.DefaultClient,
	}
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

const systemPrompt = "You are a helpful assistant that answers questions based on the provided document excerpts. " +
	"Answer using only the information from the context below. If the context doesn't contain " +
	"enough information to answer the question, say so. Reference excerpt numbers when possible."

// GenerateAnswer answers a question over the given context chunks.
func (c *Client) GenerateAnswer(ctx context.Context, question string, contextChunks []string) (string, error) {
	var contextBuilder bytes.Buffer
	contextBuilder.WriteString("--- Document excerpts ---\n\n")
	for i, chunk := range contextChunks {
		fmt.Fprintf(&contextBuilder, "[%d] %s\n\n", i+1, chunk)
	}
	contextBuilder.WriteString("--- End excerpts ---")

	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", question, contextBuilder.String())},
	}

	return c.chat(ctx, messages)
}

func (c *Client) chat(ctx context.Context, messages []ChatMessage) (string, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

	body, err := json.Marshal(chatRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrProviderUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: status %d: %s", service.ErrProviderUnavailable, resp.StatusCode, string(raw))
		}
		return "", fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return chatResp.Choices[0].Message.Content, nil
}
