package scanning

import (
	"context"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("MistralOCR", func() {
	var (
		server    *ghttp.Server
		extractor *MistralOCR
		imageData []byte
		mimeType  string
		text      string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewMistralOCR(server.URL(), "test-key", "mistral-ocr-2505")
		Expect(err).NotTo(HaveOccurred())
		imageData = []byte("fake image bytes")
		mimeType = "image/png"
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = extractor.ExtractText(context.Background(), imageData, mimeType)
	})

	When("the OCR API returns multiple pages", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/ocr"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					var req map[string]interface{}
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req["model"]).To(Equal("mistral-ocr-2505"))
					Expect(req["include_image_base64"]).To(Equal(false))
					doc := req["document"].(map[string]interface{})
					Expect(doc["type"]).To(Equal("image_url"))
					Expect(doc["image_url"]).To(HavePrefix("data:image/png;base64,"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"pages": []map[string]interface{}{
						{"markdown": "# Page one"},
						{"index": 1},
						{"markdown": ""},
						{"markdown": "Page two"},
					},
				}),
			))
		})

		It("does not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("joins non-empty pages with a blank line in page order", func() {
			Expect(text).To(Equal("# Page one\n\nPage two"))
		})
	})

	When("the OCR API returns no pages", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"pages": []map[string]interface{}{},
			}))
		})

		It("returns an empty string, not an error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(BeEmpty())
		})
	})

	When("the API key is rejected", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, "unauthorized"))
		})

		It("returns the auth failure kind", func() {
			Expect(err).To(MatchError(ErrAuth))
		})
	})

	When("the rate limit is exceeded", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, "slow down"))
		})

		It("returns the rate limit failure kind", func() {
			Expect(err).To(MatchError(ErrRateLimited))
		})
	})

	When("the API fails unexpectedly", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "boom"))
		})

		It("returns an upstream error carrying the status", func() {
			var upstreamErr *UpstreamError
			Expect(err).To(BeAssignableToTypeOf(upstreamErr))
			Expect(err.(*UpstreamError).Status).To(Equal(http.StatusBadGateway))
		})
	})

	When("the server is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns the network failure kind", func() {
			Expect(err).To(MatchError(ErrNetwork))
		})
	})

	When("no MIME type is declared", func() {
		BeforeEach(func() {
			mimeType = ""
			server.AppendHandlers(ghttp.CombineHandlers(
				func(w http.ResponseWriter, r *http.Request) {
					var req map[string]interface{}
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					doc := req["document"].(map[string]interface{})
					Expect(doc["image_url"]).To(HavePrefix("data:image/jpeg;base64,"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"pages": []map[string]interface{}{{"markdown": "text"}},
				}),
			))
		})

		It("defaults the data URL to image/jpeg", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("text"))
		})
	})
})

var _ = Describe("NewMistralOCR", func() {
	It("requires an API key", func() {
		_, err := NewMistralOCR("", "", "")
		Expect(err).To(HaveOccurred())
	})
})
