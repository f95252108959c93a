package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TextExtractor defines the interface for turning image bytes into text
type TextExtractor interface {
	// ExtractText runs OCR on an image and returns the extracted markdown text
	ExtractText(ctx context.Context, imageData []byte, mimeType string) (string, error)
	// Close closes the extractor and releases resources
	Close() error
}

// MistralOCR implements the TextExtractor interface using the Mistral OCR API
type MistralOCR struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewMistralOCR creates a new MistralOCR instance
func NewMistralOCR(baseURL, apiKey, model string) (*MistralOCR, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("mistral api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.mistral.ai"
	}
	if model == "" {
		model = "mistral-ocr-2505"
	}

	return &MistralOCR{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		timeout: 30 * time.Second,
		client:  &http.Client{},
	}, nil
}

// ocrRequest represents the request body for Mistral's OCR API
type ocrRequest struct {
	Model              string      `json:"model"`
	Document           ocrDocument `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

type ocrDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// ocrResponse represents the response from Mistral's OCR API
type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Markdown string `json:"markdown"`
}

// ExtractText sends the image to the OCR API and joins the per-page markdown
// in page order, separated by a blank line. An empty result is not an error;
// the pipeline decides whether that is fatal.
func (m *MistralOCR) ExtractText(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	// Encode the image as a base64 data URL
	encoded := base64.StdEncoding.EncodeToString(imageData)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)

	reqBody := ocrRequest{
		Model: m.model,
		Document: ocrDocument{
			Type:     "image_url",
			ImageURL: dataURL,
		},
		IncludeImageBase64: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/ocr", m.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, body)
	}

	var ocrResp ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	// Join the markdown of every page, skipping pages without text
	texts := make([]string, 0, len(ocrResp.Pages))
	for _, page := range ocrResp.Pages {
		if page.Markdown != "" {
			texts = append(texts, page.Markdown)
		}
	}

	return strings.Join(texts, "\n\n"), nil
}

// Close closes the MistralOCR client (no-op for HTTP client)
func (m *MistralOCR) Close() error {
	return nil
}
