package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// receiptParsePrompt is the shared system instruction used by all parser
// backends to turn OCR markdown into structured receipt JSON
const receiptParsePrompt = `You are a receipt parser. You receive the OCR text of a receipt in markdown and extract structured data from it.

Return ONLY valid JSON matching this exact schema:
{
  "merchant": "string",
  "date": "YYYY-MM-DD",
  "items": [{"name": "string", "price": 0.00}],
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00
}

Rules:
- Use null for values you cannot find
- Strip currency symbols from all amounts; prices must be numbers, not strings
- Use an empty list for items when no line items are found
- Always populate merchant, date, and total with your best-effort value
- Do not include any text before or after the JSON`

// Parser defines the interface for turning OCR text into a raw JSON string.
// The returned string is the model output verbatim; it may be malformed and
// is repaired by Normalize.
type Parser interface {
	// Parse sends the markdown text to a language model and returns its raw response
	Parse(ctx context.Context, markdown string) (string, error)
	// Close closes the parser and releases resources
	Close() error
}

// MistralParser implements the Parser interface using Mistral chat completions
type MistralParser struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	client    *http.Client
}

// NewMistralParser creates a new MistralParser instance
func NewMistralParser(baseURL, apiKey, model string) (*MistralParser, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("mistral api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.mistral.ai"
	}
	if model == "" {
		model = "mistral-medium-2505"
	}

	return &MistralParser{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: 512,
		timeout:   30 * time.Second,
		client:    &http.Client{},
	}, nil
}

// chatRequest represents the request body for Mistral's chat completions API
type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents the response from Mistral's chat completions API
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Parse sends the markdown text to the chat completions API and returns the
// first choice's content verbatim. Temperature is pinned to 0 so the same
// receipt text yields the same output.
func (p *MistralParser) Parse(ctx context.Context, markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", &ValidationError{Reason: "no receipt text to parse"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: receiptParsePrompt},
			{Role: "user", Content: markdown},
		},
		Temperature:    0.0,
		MaxTokens:      p.maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyContent
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Close closes the MistralParser client (no-op for HTTP client)
func (p *MistralParser) Close() error {
	return nil
}
