package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama implements ImageStructuredExtractor against a local Ollama server.
// Vision models such as llava can read the receipt image directly; plain
// models still work through ExtractFromText.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama extractor
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			// Vision models are slow on local hardware
			Timeout: 120 * time.Second,
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ExtractFromImage sends the receipt image to a vision model
func (o *Ollama) ExtractFromImage(ctx context.Context, image []byte, contentType string) (*Receipt, error) {
	pngData, _, err := NormalizeImage(image, contentType)
	if err != nil {
		return nil, err
	}
	return o.chat(ctx, receiptPromptHeader, []string{base64.StdEncoding.EncodeToString(pngData)})
}

// ExtractFromText extracts a structured receipt from OCR text
func (o *Ollama) ExtractFromText(ctx context.Context, text string) (*Receipt, error) {
	return o.chat(ctx, receiptPromptHeader+"\n\nReceipt text:\n"+text, nil)
}

func (o *Ollama) chat(ctx context.Context, prompt string, images []string) (*Receipt, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading grocery receipts and extracting every line item accurately.",
			},
			{
				Role:    "user",
				Content: prompt,
			},
		},
		Images: images,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling ollama: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %v", ErrUnavailable, err)
	}

	receipt, err := RecoverReceiptJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama response: %w", err)
	}
	return receipt, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
