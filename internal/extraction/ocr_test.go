package extraction

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/pennyledger/receipt-pipeline/internal/secrets"
)

var _ = Describe("OCRWeb", func() {
	var (
		server *ghttp.Server
		store  secrets.Store
		ocr    *OCRWeb
		image  []byte
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		store = secrets.NewStaticStore(map[string]string{
			OCRAPIKeySecret: "test-key",
		})
		// already PNG, passes through image normalization untouched
		image = []byte("png bytes")
	})

	JustBeforeEach(func() {
		ocr = NewOCRWeb(server.URL(), store)
	})

	AfterEach(func() {
		server.Close()
	})

	respond := func(body string) {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/"),
			ghttp.VerifyHeaderKV("apikey", "test-key"),
			ghttp.VerifyContentType("application/x-www-form-urlencoded"),
			ghttp.RespondWith(http.StatusOK, body),
		))
	}

	It("should return the parsed text", func() {
		respond(`{"ParsedResults":[{"ParsedText":"CORNER MARKET\nMILK 3.49\n"}],"IsErroredOnProcessing":false}`)

		text, err := ocr.ExtractText(context.Background(), image, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("CORNER MARKET\nMILK 3.49"))
	})

	It("should concatenate multiple parsed results", func() {
		respond(`{"ParsedResults":[{"ParsedText":"CORNER "},{"ParsedText":"MARKET RECEIPT"}]}`)

		text, err := ocr.ExtractText(context.Background(), image, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("CORNER MARKET RECEIPT"))
	})

	It("should return ErrEmpty for too little text", func() {
		respond(`{"ParsedResults":[{"ParsedText":"abc"}]}`)

		_, err := ocr.ExtractText(context.Background(), image, "image/png")
		Expect(err).To(MatchError(ErrEmpty))
	})

	It("should return ErrUnavailable on a non-200 status", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))

		_, err := ocr.ExtractText(context.Background(), image, "image/png")
		Expect(err).To(MatchError(ErrUnavailable))
	})

	It("should return ErrUnavailable when the service reports a processing error", func() {
		respond(`{"ParsedResults":[],"IsErroredOnProcessing":true,"ErrorMessage":["Unable to recognize the file type"]}`)

		_, err := ocr.ExtractText(context.Background(), image, "image/png")
		Expect(err).To(MatchError(ErrUnavailable))
	})

	When("the API key is not configured", func() {
		BeforeEach(func() {
			store = secrets.NewStaticStore(nil)
		})

		It("should surface the missing secret without calling the service", func() {
			_, err := ocr.ExtractText(context.Background(), image, "image/png")
			Expect(err).To(MatchError(secrets.ErrNotFound))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
