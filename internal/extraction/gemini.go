package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pennyledger/receipt-pipeline/internal/secrets"
)

// GeminiAPIKeySecret is the secret name holding the Gemini API key
const GeminiAPIKeySecret = "GEMINI_API_KEY"

// Gemini implements ImageStructuredExtractor using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini extractor. The API key comes from the secret
// store; a missing key is a configuration error.
func NewGemini(store secrets.Store, modelName string) (*Gemini, error) {
	apiKey, err := store.Get(GeminiAPIKeySecret)
	if err != nil {
		return nil, fmt.Errorf("gemini api key: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// ExtractFromImage sends the receipt image directly to the model
func (g *Gemini) ExtractFromImage(ctx context.Context, image []byte, contentType string) (*Receipt, error) {
	pngData, _, err := NormalizeImage(image, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData wants the bare format suffix; after NormalizeImage
	// everything is PNG
	return g.generate(ctx, genai.ImageData("png", pngData), genai.Text(receiptPromptHeader))
}

// ExtractFromText extracts a structured receipt from OCR text
func (g *Gemini) ExtractFromText(ctx context.Context, text string) (*Receipt, error) {
	prompt := receiptPromptHeader + "\n\nReceipt text:\n" + text
	return g.generate(ctx, genai.Text(prompt))
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %v", ErrUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrUnavailable)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	receipt, err := RecoverReceiptJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}
	return receipt, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
