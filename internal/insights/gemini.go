// Package insights generates a natural-language summary of the bill history
// using the Gemini API.
package insights

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

	"billsplit/internal/core"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-3-flash-preview"
	requestTimeout = 30 * time.Second
	maxBodySize    = 1 << 20 // 1 MB

	// EmptyHistorySummary is returned without calling the API when there is
	// nothing to analyze.
	EmptyHistorySummary = "No data available for analysis."
)

var (
	// ErrUnauthorized indicates the API key is invalid or revoked.
	ErrUnauthorized = errors.New("insights: unauthorized (API key invalid)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("insights: rate limited")
	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("insights: empty model response")
)

// Client calls the Gemini generateContent endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API key.
// Returns nil if the key is empty; callers treat a nil client as
// "insights disabled".
func NewClient(apiKey, model string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Summarize produces a short analysis of the given history: payment
// consistency, bill trends, and a group-chat status line.
func (c *Client) Summarize(ctx context.Context, history []core.MonthlyRecord) (string, error) {
	if len(history) == 0 {
		return EmptyHistorySummary, nil
	}

	prompt, err := buildPrompt(history)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("insights: encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("insights: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("insights: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrUnauthorized
	case http.StatusTooManyRequests:
		return "", ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("insights: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("insights: reading response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("insights: parsing response: %w", err)
	}

	text := extractText(parsed)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func extractText(resp generateResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func buildPrompt(history []core.MonthlyRecord) (string, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("insights: encoding history: %w", err)
	}

	var rules strings.Builder
	for i, p := range core.Participants {
		if i > 0 {
			rules.WriteString(", ")
		}
		fmt.Fprintf(&rules, "%s pays %d share(s)", p.ID, p.Weight)
	}

	return fmt.Sprintf(`Analyze the following shared WiFi bill history for four participants.
Rules: %s.
History: %s

Provide a concise summary of:
1. Who is most consistent with payments.
2. Any notable trends in the total bill.
3. A friendly, light-hearted "status update" message for the group chat.
Keep the tone helpful and professional yet warm.`, rules.String(), data), nil
}
