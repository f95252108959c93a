package scanning

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockExtractor is a mock implementation of TextExtractor
type mockExtractor struct {
	text   string
	err    error
	called bool
}

func (m *mockExtractor) ExtractText(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	m.called = true
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockExtractor) Close() error { return nil }

// mockParser is a mock implementation of Parser
type mockParser struct {
	raw    string
	err    error
	called bool
}

func (m *mockParser) Parse(ctx context.Context, markdown string) (string, error) {
	m.called = true
	if m.err != nil {
		return "", m.err
	}
	return m.raw, nil
}

func (m *mockParser) Close() error { return nil }

// mockStaging records staged files and their lifecycle
type mockStaging struct {
	saved   []string
	deleted []string
	saveErr error
}

func (m *mockStaging) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved = append(m.saved, filename)
	return filename, nil
}

func (m *mockStaging) Delete(path string) error {
	m.deleted = append(m.deleted, path)
	return nil
}

var _ = Describe("Pipeline", func() {
	var (
		extractor *mockExtractor
		parser    *mockParser
		staging   *mockStaging
		limits    Limits
		pipeline  *Pipeline
		data      []byte
		mimeType  string
		filename  string
		result    *ProcessResult
		err       error
		now       time.Time
	)

	BeforeEach(func() {
		extractor = &mockExtractor{text: "# Store\nTOTAL $5.00"}
		parser = &mockParser{raw: `{"merchant":"Store","date":"2024-01-01","total":5}`}
		staging = &mockStaging{}
		limits = Limits{MaxBytes: 1024, AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"}}
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		data = []byte("image bytes")
		mimeType = "image/png"
		filename = "receipt.png"
	})

	JustBeforeEach(func() {
		pipeline = NewPipelineWithClock(extractor, parser, staging, limits, func() time.Time { return now })
		result, err = pipeline.Process(context.Background(), data, mimeType, filename)
	})

	When("every stage succeeds", func() {
		It("does not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the normalized receipt", func() {
			Expect(result.Receipt.Merchant).To(Equal("Store"))
			Expect(result.Receipt.Total).To(Equal(5.0))
			Expect(result.Fallback).To(BeFalse())
		})

		It("assembles the metadata", func() {
			Expect(result.Metadata.OriginalFilename).To(Equal("receipt.png"))
			Expect(result.Metadata.ProcessedAt).To(Equal(now))
		})

		It("releases the staged image", func() {
			Expect(staging.saved).To(HaveLen(1))
			Expect(staging.deleted).To(Equal(staging.saved))
		})
	})

	When("the parser output is unusable", func() {
		BeforeEach(func() {
			parser.raw = "sorry, I could not read that receipt"
		})

		It("still succeeds, with the fallback record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Fallback).To(BeTrue())
			Expect(result.Receipt.Merchant).To(Equal("Unable to parse"))
		})
	})

	When("no filename is provided", func() {
		BeforeEach(func() {
			filename = ""
		})

		It("returns a validation stage error", func() {
			var stageErr *StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageValidation))
		})

		It("never calls upstream", func() {
			Expect(extractor.called).To(BeFalse())
			Expect(parser.called).To(BeFalse())
		})
	})

	When("the file is empty", func() {
		BeforeEach(func() {
			data = nil
		})

		It("returns a validation stage error", func() {
			var stageErr *StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageValidation))
		})
	})

	When("the file exceeds the size limit", func() {
		BeforeEach(func() {
			data = make([]byte, 2048)
		})

		It("returns the file too large failure kind", func() {
			Expect(err).To(MatchError(ErrFileTooLarge))
		})

		It("tags it as a validation failure", func() {
			var stageErr *StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageValidation))
		})
	})

	When("the MIME type is not allowed", func() {
		BeforeEach(func() {
			mimeType = "text/plain"
		})

		It("returns a validation stage error", func() {
			var validationErr *ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(extractor.called).To(BeFalse())
		})
	})

	When("OCR extracts no text", func() {
		BeforeEach(func() {
			extractor.text = "  \n "
		})

		It("returns a validation stage error", func() {
			var stageErr *StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageValidation))
		})

		It("never reaches the parser", func() {
			Expect(parser.called).To(BeFalse())
		})

		It("still releases the staged image", func() {
			Expect(staging.deleted).To(Equal(staging.saved))
		})
	})

	When("the OCR call fails", func() {
		BeforeEach(func() {
			extractor.err = ErrRateLimited
		})

		It("tags the failure with the ocr stage", func() {
			var stageErr *StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageOCR))
		})

		It("preserves the failure kind through the tag", func() {
			Expect(err).To(MatchError(ErrRateLimited))
		})

		It("still releases the staged image", func() {
			Expect(staging.deleted).To(Equal(staging.saved))
		})
	})

	When("the parse call fails", func() {
		BeforeEach(func() {
			parser.err = ErrEmptyContent
		})

		It("tags the failure with the parse stage", func() {
			var stageErr *StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(stageErr.Stage).To(Equal(StageParse))
		})

		It("still releases the staged image", func() {
			Expect(staging.deleted).To(Equal(staging.saved))
		})
	})

	When("staging fails", func() {
		BeforeEach(func() {
			staging.saveErr = errors.New("disk full")
		})

		It("returns the error without calling upstream", func() {
			Expect(err).To(HaveOccurred())
			Expect(extractor.called).To(BeFalse())
		})
	})
})

var _ = Describe("Limits", func() {
	It("allows everything when no types are configured", func() {
		Expect(Limits{}.Allows("anything/at-all")).To(BeTrue())
	})

	It("matches types case-insensitively with surrounding whitespace", func() {
		l := Limits{AllowedTypes: []string{" image/JPEG "}}
		Expect(l.Allows("image/jpeg")).To(BeTrue())
		Expect(l.Allows("image/png")).To(BeFalse())
	})
})
