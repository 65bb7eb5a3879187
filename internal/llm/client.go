// Package llm talks to an OpenRouter-compatible chat-completions endpoint
// and turns its replies into persona, life-day and coordinate drafts.
package llm

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

	"liferoom.ai/internal/config"
)

var ErrNotConfigured = errors.New("llm: no api key configured")

const appTitle = "AI Life Room"

type Client struct {
	baseURL     string
	apiKey      string
	model       string
	referer     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// New builds a client. referer is sent as HTTP-Referer and should be the
// public URL of the room.
func New(cfg config.LLMConfig, apiKey, referer string) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      strings.TrimSpace(apiKey),
		model:       cfg.Model,
		referer:     referer,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c != nil && c.apiKey != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", appTitle)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm error %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 300))
	}
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", errors.New("empty response from llm")
	}
	return cr.Choices[0].Message.Content, nil
}

// ExtractJSON decodes the first JSON object it can find in text: the whole
// text, then a fenced code block, then the span from the first '{' to the
// last '}'.
func ExtractJSON(text string, v any) error {
	for _, cand := range jsonCandidates(text) {
		if cand == "" {
			continue
		}
		if err := json.Unmarshal([]byte(cand), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("could not parse JSON from llm response: %s", truncate(text, 300))
}

func jsonCandidates(text string) []string {
	out := []string{strings.TrimSpace(text)}
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			block := rest[:j]
			block = strings.TrimPrefix(block, "json")
			out = append(out, strings.TrimSpace(block))
		}
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
