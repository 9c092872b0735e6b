package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pennyledger/receipt-pipeline/internal/secrets"
)

// OCRAPIKeySecret is the secret name holding the OCR service API key
const OCRAPIKeySecret = "OCR_API_KEY"

// minUsableTextLength is the shortest OCR result worth handing to the
// structured extractor
const minUsableTextLength = 10

// OCRWeb implements TextExtractor against an ocr.space-compatible HTTP API.
type OCRWeb struct {
	baseURL string
	secrets secrets.Store
	client  *http.Client
}

// NewOCRWeb creates an OCR text extractor. The API key is fetched from the
// secret store per request so a missing key surfaces as a configuration
// error at processing time.
func NewOCRWeb(baseURL string, store secrets.Store) *OCRWeb {
	if baseURL == "" {
		baseURL = "https://api.ocr.space/parse/image"
	}
	return &OCRWeb{
		baseURL: baseURL,
		secrets: store,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type ocrParseResult struct {
	ParsedText string `json:"ParsedText"`
}

type ocrResponse struct {
	ParsedResults         []ocrParseResult `json:"ParsedResults"`
	IsErroredOnProcessing bool             `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage  `json:"ErrorMessage"`
}

// ExtractText runs OCR over the receipt image and returns the plain text
func (o *OCRWeb) ExtractText(ctx context.Context, image []byte, contentType string) (string, error) {
	apiKey, err := o.secrets.Get(OCRAPIKeySecret)
	if err != nil {
		return "", fmt.Errorf("ocr api key: %w", err)
	}

	pngData, mimeType, err := NormalizeImage(image, contentType)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("base64Image", fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(pngData)))
	form.Set("scale", "true")
	form.Set("OCREngine", "2")

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling ocr service: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ocr status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding ocr response: %v", ErrUnavailable, err)
	}
	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("%w: ocr processing failed: %s", ErrUnavailable, string(parsed.ErrorMessage))
	}

	var text strings.Builder
	for _, result := range parsed.ParsedResults {
		text.WriteString(result.ParsedText)
	}

	trimmed := strings.TrimSpace(text.String())
	if len(trimmed) < minUsableTextLength {
		return "", fmt.Errorf("%w: got %d characters", ErrEmpty, len(trimmed))
	}
	return trimmed, nil
}
