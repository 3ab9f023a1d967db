package scanning

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-pages/internal/invoice"
)

const pageResponse = `{"supplier": "Acme Ltd", "invoiceNumber": "INV-1", "currency": "GBP", "lineItems": [{"description": "Widget", "quantity": 2, "unitPrice": 50, "totalPrice": 100, "category": "Materials"}], "subtotal": 100, "taxAmount": 20, "totalAmount": 120, "confidence": 0.9}`

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		data    *invoice.InvoiceData
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanPage(context.Background(), testPNG(), "image/png")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"message": map[string]string{"role": "assistant", "content": pageResponse},
					"done":    true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the extracted page", func() {
			Expect(data.Supplier).To(Equal("Acme Ltd"))
			Expect(data.LineItems).To(HaveLen(1))
			Expect(data.TotalAmount).To(Equal(120.0))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the status and body", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})

	When("the model does not return JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": "I cannot read this page"},
				"done":    true,
			}))
		})

		It("returns a parse error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing page data")))
		})
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
		data    *invoice.InvoiceData
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOpenAI("test-key", "gpt-4o", server.URL()+"/v1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanPage(context.Background(), testPNG(), "image/png")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"id":      "chatcmpl-1",
					"object":  "chat.completion",
					"created": 1,
					"model":   "gpt-4o",
					"choices": []map[string]interface{}{
						{
							"index":         0,
							"finish_reason": "stop",
							"message":       map[string]string{"role": "assistant", "content": pageResponse},
						},
					},
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the extracted page", func() {
			Expect(data.InvoiceNumber).To(Equal("INV-1"))
			Expect(data.Confidence).To(Equal(0.9))
		})
	})

	When("no choices are returned", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"id":      "chatcmpl-1",
				"choices": []interface{}{},
			}))
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("no response from openai")))
		})
	})
})

var _ = Describe("NewOpenAI", func() {
	It("requires an api key", func() {
		_, err := NewOpenAI("", "", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})

var _ = Describe("NewGemini", func() {
	It("requires an api key", func() {
		_, err := NewGemini("", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})
