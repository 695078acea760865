package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harryneopotter/aicli/internal/config"
)

// OpenAICompatible talks to any chat-completions endpoint that follows
// the OpenAI request shape (OpenAI, DeepSeek, Ollama, llama.cpp, ...).
type OpenAICompatible struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatible builds a provider from the model config.
func NewOpenAICompatible(cfg config.ModelConfig) (*OpenAICompatible, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("model base_url is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	return &OpenAICompatible{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Name,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Chat sends the conversation and returns the assistant's text.
func (p *OpenAICompatible) Chat(ctx context.Context, messages []Message) (string, error) {
	reqBody := map[string]any{
		"model":    p.model,
		"messages": messages,
		"stream":   false,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return apiResp.Choices[0].Message.Content, nil
}

// IsAvailable checks that the endpoint answers its models listing.
func (p *OpenAICompatible) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
