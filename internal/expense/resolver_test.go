package expense

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// mockBlobSigner fakes the S3 presigner
type mockBlobSigner struct {
	url    string
	err    error
	bucket string
	key    string
}

func (m *mockBlobSigner) SignGetURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	m.bucket, m.key = bucket, key
	return m.url, m.err
}

// mockArchiveSigner fakes the cold-storage URL signer
type mockArchiveSigner struct {
	url string
	err error
}

func (m *mockArchiveSigner) SignURL(baseURL, path string) (string, error) {
	return m.url, m.err
}

var _ = Describe("Resolver", func() {
	var (
		blob     *mockBlobSigner
		archive  *mockArchiveSigner
		resolver *Resolver
		pointer  *ReceiptPointer
		source   *ReceiptSource
		err      error
	)

	BeforeEach(func() {
		blob = &mockBlobSigner{url: "https://blob.example.com/signed"}
		archive = &mockArchiveSigner{url: "https://archive.example.com/file?token=t"}
		resolver = NewResolver(blob, archive)
	})

	Describe("Resolve", func() {
		JustBeforeEach(func() {
			source, err = resolver.Resolve(context.Background(), pointer)
		})

		When("the pointer is an inline data URI", func() {
			BeforeEach(func() {
				pointer = &ReceiptPointer{Kind: PointerInline, URL: "data:image/png;base64,QQ=="}
			})

			It("should return an inline source", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(source.InlineURL).To(Equal("data:image/png;base64,QQ=="))
				Expect(source.FetchURL).To(BeEmpty())
			})
		})

		When("the pointer is a literal URL", func() {
			BeforeEach(func() {
				pointer = &ReceiptPointer{Kind: PointerInline, URL: "https://cdn.example.com/r.jpg"}
			})

			It("should return it as the fetch URL", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(source.FetchURL).To(Equal("https://cdn.example.com/r.jpg"))
			})
		})

		When("the pointer references the blob store", func() {
			BeforeEach(func() {
				pointer = &ReceiptPointer{Kind: PointerBlob, Bucket: "receipts", Path: "2026/r.jpg", Type: "image/jpeg"}
			})

			It("should presign the object", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(source.FetchURL).To(Equal("https://blob.example.com/signed"))
				Expect(source.ContentType).To(Equal("image/jpeg"))
				Expect(blob.bucket).To(Equal("receipts"))
				Expect(blob.key).To(Equal("2026/r.jpg"))
			})
		})

		When("the pointer references the archive", func() {
			BeforeEach(func() {
				pointer = &ReceiptPointer{Kind: PointerArchive, BaseURL: "https://archive.example.com", Path: "/file"}
			})

			It("should return the authenticated URL", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(source.FetchURL).To(Equal("https://archive.example.com/file?token=t"))
			})
		})
	})

	Describe("Fetch", func() {
		When("the source is inline", func() {
			It("should decode the data URI", func() {
				data, contentType, fetchErr := resolver.Fetch(context.Background(), &ReceiptSource{
					InlineURL: "data:image/jpeg;base64,aGVsbG8=",
				})
				Expect(fetchErr).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("hello")))
				Expect(contentType).To(Equal("image/jpeg"))
			})

			It("should reject non-base64 data URIs", func() {
				_, _, fetchErr := resolver.Fetch(context.Background(), &ReceiptSource{
					InlineURL: "data:text/plain,hello",
				})
				Expect(fetchErr).To(HaveOccurred())
			})
		})

		When("the source is a URL", func() {
			var server *ghttp.Server

			BeforeEach(func() {
				server = ghttp.NewServer()
			})

			AfterEach(func() {
				server.Close()
			})

			It("should download the bytes", func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/receipt.jpg"),
					ghttp.RespondWith(http.StatusOK, []byte{0xFF, 0xD8}, http.Header{"Content-Type": []string{"image/jpeg"}}),
				))

				data, contentType, fetchErr := resolver.Fetch(context.Background(), &ReceiptSource{
					FetchURL: server.URL() + "/receipt.jpg",
				})
				Expect(fetchErr).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte{0xFF, 0xD8}))
				Expect(contentType).To(Equal("image/jpeg"))
			})

			It("should prefer the stored content type", func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "x", http.Header{"Content-Type": []string{"application/octet-stream"}}))

				_, contentType, fetchErr := resolver.Fetch(context.Background(), &ReceiptSource{
					FetchURL:    server.URL() + "/r",
					ContentType: "image/png",
				})
				Expect(fetchErr).NotTo(HaveOccurred())
				Expect(contentType).To(Equal("image/png"))
			})

			It("should fail on non-200 responses", func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "gone"))

				_, _, fetchErr := resolver.Fetch(context.Background(), &ReceiptSource{
					FetchURL: server.URL() + "/missing",
				})
				Expect(fetchErr).To(HaveOccurred())
				Expect(fetchErr.Error()).To(ContainSubstring("status 404"))
			})
		})
	})
})
