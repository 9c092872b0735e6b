package expense

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pennyledger/receipt-pipeline/internal/storage"
)

// signedURLTTL bounds how long a resolved blob URL stays fetchable. One
// processing run never needs more than a few minutes.
const signedURLTTL = 15 * time.Minute

// maxReceiptBytes caps a fetched receipt image (phone photos run large)
const maxReceiptBytes = 50 << 20

// ReceiptSource is a fetchable receipt image: either an inline data URI
// already carrying the bytes, or a time-limited URL.
type ReceiptSource struct {
	InlineURL string
	FetchURL  string
	// ContentType is the stored hint; empty means sniff from the response
	ContentType string
}

// Resolver converts parsed receipt pointers into fetchable sources and
// fetches their bytes.
type Resolver struct {
	blob    storage.BlobSigner
	archive storage.ArchiveSigner
	client  *http.Client
}

// NewResolver creates a pointer resolver over the given storage backends
func NewResolver(blob storage.BlobSigner, archive storage.ArchiveSigner) *Resolver {
	return &Resolver{
		blob:    blob,
		archive: archive,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Resolve turns a parsed pointer into a receipt source. Blob pointers get
// a presigned URL, archive pointers an authenticated download URL.
func (r *Resolver) Resolve(ctx context.Context, ptr *ReceiptPointer) (*ReceiptSource, error) {
	switch ptr.Kind {
	case PointerInline:
		if strings.HasPrefix(ptr.URL, "data:") {
			return &ReceiptSource{InlineURL: ptr.URL}, nil
		}
		return &ReceiptSource{FetchURL: ptr.URL}, nil
	case PointerBlob:
		if r.blob == nil {
			return nil, fmt.Errorf("no blob signer configured for pointer %s/%s", ptr.Bucket, ptr.Path)
		}
		signed, err := r.blob.SignGetURL(ctx, ptr.Bucket, ptr.Path, signedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("signing blob url: %w", err)
		}
		return &ReceiptSource{FetchURL: signed, ContentType: ptr.Type}, nil
	case PointerArchive:
		if r.archive == nil {
			return nil, fmt.Errorf("no archive signer configured for pointer %s%s", ptr.BaseURL, ptr.Path)
		}
		signed, err := r.archive.SignURL(ptr.BaseURL, ptr.Path)
		if err != nil {
			return nil, fmt.Errorf("signing archive url: %w", err)
		}
		return &ReceiptSource{FetchURL: signed, ContentType: ptr.Type}, nil
	default:
		return nil, fmt.Errorf("unknown pointer kind %q", ptr.Kind)
	}
}

// Fetch returns the receipt image bytes and content type for a source
func (r *Resolver) Fetch(ctx context.Context, source *ReceiptSource) ([]byte, string, error) {
	if source.InlineURL != "" {
		return decodeDataURI(source.InlineURL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", source.FetchURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating fetch request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching receipt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching receipt: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReceiptBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading receipt body: %w", err)
	}

	contentType := source.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return data, contentType, nil
}

// decodeDataURI decodes an inline base64 data URI like
// "data:image/jpeg;base64,...."
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}

	contentType, _, _ := strings.Cut(meta, ";")
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("unsupported data URI encoding %q", meta)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decoding data URI: %w", err)
	}
	return data, contentType, nil
}
