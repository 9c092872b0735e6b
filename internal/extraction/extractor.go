package extraction

import (
	"context"
	"errors"
	"regexp"
	"strconv"
)

// Extraction failure taxonomy. Adapters report these; retry policy belongs
// to the caller.
var (
	// ErrUnavailable means the upstream service failed or returned garbage
	ErrUnavailable = errors.New("extraction service unavailable")

	// ErrEmpty means no usable text was found in the image
	ErrEmpty = errors.New("no usable text extracted")

	// ErrNonJSON means no JSON object could be recovered from the model output
	ErrNonJSON = errors.New("non-json response from model")
)

// Receipt is the structured result of extracting a receipt image or its text.
type Receipt struct {
	Store string `json:"store"`
	Date  string `json:"date"`
	Total Number `json:"total"`
	Items []Item `json:"items"`
}

// Item is one raw line of a structured receipt, before normalization.
// Numeric fields come back from models as numbers, quoted numbers, or
// currency-prefixed strings, so they use the tolerant Number type.
type Item struct {
	RawDescription string `json:"raw_description"`
	Description    string `json:"description"`
	Quantity       Number `json:"quantity"`
	QuantityUnit   string `json:"quantity_unit"`
	UnitPrice      Number `json:"unit_price"`
	TotalPrice     Number `json:"total_price"`
}

// TextExtractor turns receipt image bytes into plain text (OCR).
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, contentType string) (string, error)
}

// StructuredExtractor turns OCR text into a structured receipt.
type StructuredExtractor interface {
	ExtractFromText(ctx context.Context, text string) (*Receipt, error)
	// Close releases client resources
	Close() error
}

// ImageStructuredExtractor is a StructuredExtractor that can also read the
// receipt image directly, making a separate OCR pass unnecessary.
type ImageStructuredExtractor interface {
	StructuredExtractor
	ExtractFromImage(ctx context.Context, image []byte, contentType string) (*Receipt, error)
}

// TextOnly hides an extractor's image capability so callers always run
// the OCR text pass first. Useful when a vision model reads receipt
// layouts poorly but handles clean OCR text fine.
func TextOnly(e StructuredExtractor) StructuredExtractor {
	return textOnly{inner: e}
}

type textOnly struct {
	inner StructuredExtractor
}

func (t textOnly) ExtractFromText(ctx context.Context, text string) (*Receipt, error) {
	return t.inner.ExtractFromText(ctx, text)
}

func (t textOnly) Close() error {
	return t.inner.Close()
}

// firstNumber matches the first signed decimal in a string, tolerating
// surrounding text like "$12.99" or "2 pcs".
var firstNumber = regexp.MustCompile(`[-+]?(?:\d+(?:\.\d+)?|\.\d+)`)

// Number is a float64 that unmarshals leniently. Anything that does not
// contain a decimal number becomes invalid rather than an error.
type Number struct {
	value float64
	valid bool
}

// NumberOf wraps a plain float64 as a valid Number
func NumberOf(v float64) Number {
	return Number{value: v, valid: true}
}

// Float returns the numeric value, 0 when invalid
func (n Number) Float() float64 {
	if !n.valid {
		return 0
	}
	return n.value
}

// Valid reports whether a number was actually present
func (n Number) Valid() bool {
	return n.valid
}

// UnmarshalJSON accepts JSON numbers, quoted numbers, text containing a
// number, and null. It never fails; unusable input yields an invalid Number.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*n = Number{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			*n = Number{}
			return nil
		}
		s = unquoted
	}
	match := firstNumber.FindString(s)
	if match == "" {
		*n = Number{}
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		*n = Number{}
		return nil
	}
	*n = Number{value: value, valid: true}
	return nil
}

// MarshalJSON renders the value, or null when invalid
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.value, 'f', -1, 64)), nil
}
