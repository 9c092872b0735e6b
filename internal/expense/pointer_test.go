package expense

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseReceiptPointer", func() {
	var (
		raw     json.RawMessage
		pointer *ReceiptPointer
		err     error
	)

	JustBeforeEach(func() {
		pointer, err = ParseReceiptPointer(raw)
	})

	When("the pointer is an inline data URI object", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`{"url":"data:image/jpeg;base64,QUJD"}`)
		})

		It("should parse an inline pointer", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerInline))
			Expect(pointer.URL).To(Equal("data:image/jpeg;base64,QUJD"))
		})
	})

	When("the pointer references the primary blob store", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`{"storage":"primary-blob","bucket":"receipts","path":"2026/08/r1.jpg","type":"image/jpeg","filename":"r1.jpg"}`)
		})

		It("should parse a blob pointer", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerBlob))
			Expect(pointer.Bucket).To(Equal("receipts"))
			Expect(pointer.Path).To(Equal("2026/08/r1.jpg"))
			Expect(pointer.Type).To(Equal("image/jpeg"))
			Expect(pointer.Filename).To(Equal("r1.jpg"))
		})
	})

	When("the pointer references the archive", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`{"storage":"archive","baseUrl":"https://archive.example.com","path":"/2024/r9.png","type":"image/png"}`)
		})

		It("should parse an archive pointer", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerArchive))
			Expect(pointer.BaseURL).To(Equal("https://archive.example.com"))
			Expect(pointer.Path).To(Equal("/2024/r9.png"))
		})
	})

	When("the pointer is an array", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`[{"url":"data:image/png;base64,QQ=="},{"url":"ignored"}]`)
		})

		It("should use the first element", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerInline))
			Expect(pointer.URL).To(Equal("data:image/png;base64,QQ=="))
		})
	})

	When("the pointer is a JSON-encoded object string", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`"{\"storage\":\"primary-blob\",\"bucket\":\"receipts\",\"path\":\"r2.jpg\"}"`)
		})

		It("should decode the inner object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerBlob))
			Expect(pointer.Path).To(Equal("r2.jpg"))
		})
	})

	When("the pointer is a bare URL string", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`"https://cdn.example.com/r3.jpg"`)
		})

		It("should treat it as a literal URL", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerInline))
			Expect(pointer.URL).To(Equal("https://cdn.example.com/r3.jpg"))
		})
	})

	When("the string looks like JSON but is malformed", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`"{not valid json"`)
		})

		It("should fall back to a literal URL", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pointer.Kind).To(Equal(PointerInline))
			Expect(pointer.URL).To(Equal("{not valid json"))
		})
	})

	When("the pointer is missing", func() {
		BeforeEach(func() {
			raw = nil
		})

		It("should signal not ready", func() {
			Expect(err).To(MatchError(ErrPointerNotReady))
		})
	})

	When("the pointer is JSON null", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`null`)
		})

		It("should signal not ready", func() {
			Expect(err).To(MatchError(ErrPointerNotReady))
		})
	})

	When("a blob pointer is missing its path", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`{"storage":"primary-blob","bucket":"receipts"}`)
		})

		It("should signal not ready", func() {
			Expect(err).To(MatchError(ErrPointerNotReady))
		})
	})

	When("the storage kind is unknown", func() {
		BeforeEach(func() {
			raw = json.RawMessage(`{"storage":"tape-robot","path":"x"}`)
		})

		It("should signal not ready", func() {
			Expect(err).To(MatchError(ErrPointerNotReady))
		})
	})
})
