package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Staging defines the interface for the temporary image buffer a pipeline
// run owns while the OCR call is in flight
type Staging interface {
	// Save stages a file and returns the path/filename
	Save(filename string, data []byte) (string, error)
	// Delete removes a staged file
	Delete(path string) error
}

// Limits holds the upload validation limits, built once at startup
type Limits struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Allows reports whether the MIME type is in the allowed list. An empty list
// allows everything.
func (l Limits) Allows(mimeType string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for _, t := range l.AllowedTypes {
		if strings.ToLower(strings.TrimSpace(t)) == mimeType {
			return true
		}
	}
	return false
}

// Metadata describes a completed pipeline run
type Metadata struct {
	OriginalFilename string    `json:"original_filename"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// ProcessResult is the outcome of a successful pipeline run. Receipt is
// always well typed; Fallback is true when normalization could not recover
// any structured data and Receipt holds the canonical placeholder.
type ProcessResult struct {
	Receipt  Receipt
	Fallback bool
	Metadata Metadata
}

// Pipeline sequences validation, OCR, parsing, and normalization for one
// uploaded receipt image
type Pipeline struct {
	extractor TextExtractor
	parser    Parser
	staging   Staging
	limits    Limits
	now       func() time.Time
}

// NewPipeline creates a new Pipeline
func NewPipeline(extractor TextExtractor, parser Parser, staging Staging, limits Limits) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		parser:    parser,
		staging:   staging,
		limits:    limits,
		now:       time.Now,
	}
}

// NewPipelineWithClock creates a new Pipeline with a custom clock for testing
func NewPipelineWithClock(extractor TextExtractor, parser Parser, staging Staging, limits Limits, now func() time.Time) *Pipeline {
	p := NewPipeline(extractor, parser, staging, limits)
	p.now = now
	return p
}

// Process runs one receipt image through the full pipeline. Failures carry
// the stage they originated from; normalization by construction never fails,
// so its worst outcome is a fallback record inside a successful result.
func (p *Pipeline) Process(ctx context.Context, data []byte, mimeType, filename string) (*ProcessResult, error) {
	if err := p.validate(data, mimeType, filename); err != nil {
		return nil, &StageError{Stage: StageValidation, Err: err}
	}

	prepared, preparedType, err := prepareImage(data, mimeType)
	if err != nil {
		return nil, &StageError{Stage: StageValidation, Err: &ValidationError{Reason: err.Error()}}
	}

	// The staged copy is owned by this run alone and released on every exit
	// path, including stage failures
	staged, err := p.staging.Save(p.stagingName(filename), prepared)
	if err != nil {
		return nil, fmt.Errorf("staging image: %w", err)
	}
	defer func() {
		if err := p.staging.Delete(staged); err != nil {
			slog.Warn("Failed to release staged image", "path", staged, "error", err)
		}
	}()

	text, err := p.extractor.ExtractText(ctx, prepared, preparedType)
	if err != nil {
		return nil, &StageError{Stage: StageOCR, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &StageError{
			Stage: StageValidation,
			Err:   &ValidationError{Reason: "could not extract text from image"},
		}
	}

	raw, err := p.parser.Parse(ctx, text)
	if err != nil {
		return nil, &StageError{Stage: StageParse, Err: err}
	}

	result := Normalize(raw)
	if result.Fallback {
		slog.Warn("Normalization fell back to placeholder record", "filename", filename)
	}

	return &ProcessResult{
		Receipt:  result.Receipt,
		Fallback: result.Fallback,
		Metadata: Metadata{
			OriginalFilename: filename,
			ProcessedAt:      p.now(),
		},
	}, nil
}

func (p *Pipeline) validate(data []byte, mimeType, filename string) error {
	if filename == "" {
		return &ValidationError{Reason: "no filename provided"}
	}
	if len(data) == 0 {
		return &ValidationError{Reason: "empty file"}
	}
	if p.limits.MaxBytes > 0 && int64(len(data)) > p.limits.MaxBytes {
		return fmt.Errorf("file exceeds %d bytes: %w", p.limits.MaxBytes, ErrFileTooLarge)
	}
	if !p.limits.Allows(mimeType) {
		return &ValidationError{Reason: fmt.Sprintf("unsupported file type: %s", mimeType)}
	}
	return nil
}

func (p *Pipeline) stagingName(filename string) string {
	return fmt.Sprintf("%d_%s", p.now().UnixNano(), filepath.Base(filename))
}

// Close releases the pipeline's upstream clients
func (p *Pipeline) Close() error {
	if err := p.extractor.Close(); err != nil {
		return err
	}
	return p.parser.Close()
}
