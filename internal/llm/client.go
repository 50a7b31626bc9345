package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kylenessen/ramble/internal/config"
	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/types"
)

// Provider endpoints per service.
const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	anthropicBaseURL  = "https://api.anthropic.com/v1"

	anthropicVersion = "2023-06-01"
)

// ChatClient talks to a hosted language model: an OpenAI-compatible
// chat-completions API, or the Anthropic messages API for the claude service.
type ChatClient struct {
	apiKey     string
	model      string
	service    string
	base       string
	httpClient *http.Client
	log        *logger.Logger
}

// NewChatClient builds the production enhancer from config. Supported
// services: openai, openrouter, claude.
func NewChatClient(cfg config.LLMConfig) (*ChatClient, error) {
	var base string
	switch cfg.Service {
	case "openai":
		base = openAIBaseURL
	case "openrouter":
		base = openRouterBaseURL
	case "claude":
		base = anthropicBaseURL
	default:
		return nil, fmt.Errorf("unsupported llm service: %s", cfg.Service)
	}
	return &ChatClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		service:    cfg.Service,
		base:       base,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        logger.New(),
	}, nil
}

func (c *ChatClient) Enhance(ctx context.Context, transcript *types.TranscriptResult, recordedAt time.Time) (*types.EnhancedContent, error) {
	c.log.Info("processing transcript with LLM")

	raw, err := c.complete(ctx, buildPrompt(transcript.Text, recordedAt))
	if err != nil {
		return nil, err
	}

	content, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	c.log.WithField("chars", len(content.Content)).Info("LLM processing completed")
	return content, nil
}

func (c *ChatClient) complete(ctx context.Context, prompt string) (string, error) {
	if c.service == "claude" {
		return c.messages(ctx, prompt)
	}
	return c.chat(ctx, prompt)
}

func (c *ChatClient) chat(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.5,
		"max_tokens":  8000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", faults.Transport("llm.chat", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", faults.Transport("llm.chat", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.Transport("llm.chat", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", faults.Transport("llm.chat", err)
	}
	if resp.StatusCode >= 300 {
		return "", faults.Transportf("llm.chat", "unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", faults.Transportf("llm.chat", "decode response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return "", faults.Transportf("llm.chat", "response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *ChatClient) messages(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 8000,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.5,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", faults.Transport("llm.messages", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", faults.Transport("llm.messages", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.Transport("llm.messages", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", faults.Transport("llm.messages", err)
	}
	if resp.StatusCode >= 300 {
		return "", faults.Transportf("llm.messages", "unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", faults.Transportf("llm.messages", "decode response: %v", err)
	}
	if len(parsed.Content) == 0 {
		return "", faults.Transportf("llm.messages", "response has no content blocks")
	}
	return parsed.Content[0].Text, nil
}
