package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// stripCodeFences removes markdown code fences the models like to wrap
// JSON output in
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// RecoverReceiptJSON parses a structured receipt out of model output.
// Models return JSON wrapped in prose, fenced code blocks, or with trailing
// commas, so parsing is attempted in stages: direct, then the first "{"
// through the last "}", then with trailing commas stripped. If nothing
// yields a valid object the result is ErrNonJSON.
func RecoverReceiptJSON(text string) (*Receipt, error) {
	text = stripCodeFences(text)

	var receipt Receipt
	if err := json.Unmarshal([]byte(text), &receipt); err == nil {
		return &receipt, nil
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("%w: no JSON object found", ErrNonJSON)
	}
	text = text[startIdx : endIdx+1]

	if err := json.Unmarshal([]byte(text), &receipt); err == nil {
		return &receipt, nil
	}

	// Last resort: models sometimes emit ",}" or ",]" before closing
	text = trailingComma.ReplaceAllString(text, "$1")
	if err := json.Unmarshal([]byte(text), &receipt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonJSON, err)
	}
	return &receipt, nil
}

// dateFormats are the receipt date layouts seen in the wild, tried in order
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// ParseReceiptDate parses a model-reported purchase date. The second return
// is false when no known layout matches.
func ParseReceiptDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, value); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
