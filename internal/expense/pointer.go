package expense

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrPointerNotReady signals that the stored receipt pointer is missing or
// not yet usable. It is a polling signal, not a hard failure: the client
// may still be uploading when processing is triggered.
var ErrPointerNotReady = errors.New("receipt pointer not ready")

// PointerKind discriminates the receipt pointer variants
type PointerKind string

const (
	// PointerInline carries the bytes in a data URI, or a literal URL
	PointerInline PointerKind = "inline"
	// PointerBlob references an object in the primary blob store
	PointerBlob PointerKind = "primary-blob"
	// PointerArchive references a file moved to cold storage
	PointerArchive PointerKind = "archive"
)

// ReceiptPointer is the parsed, tagged form of a stored receipt reference.
type ReceiptPointer struct {
	Kind PointerKind

	// URL is set for inline pointers
	URL string

	// Blob fields
	Bucket   string
	Path     string
	Type     string
	Filename string

	// Archive fields (Path and Type shared with blob)
	BaseURL string
}

// rawPointer is the stored object shape for blob and archive pointers
type rawPointer struct {
	URL      string `json:"url"`
	Storage  string `json:"storage"`
	Bucket   string `json:"bucket"`
	BaseURL  string `json:"baseUrl"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

// ParseReceiptPointer normalizes a stored pointer value into its tagged
// form. It tolerates the legacy encodings still present on old records:
// bare string receipts, JSON-encoded strings, and array wrappers (first
// element wins). Missing or unusable pointers yield ErrPointerNotReady.
func ParseReceiptPointer(raw json.RawMessage) (*ReceiptPointer, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, ErrPointerNotReady
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, ErrPointerNotReady
		}
		return parsePointerString(s)
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(raw, &elements); err != nil || len(elements) == 0 {
			return nil, ErrPointerNotReady
		}
		return ParseReceiptPointer(elements[0])
	case '{':
		var obj rawPointer
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, ErrPointerNotReady
		}
		return pointerFromObject(obj)
	default:
		// stored as a raw unquoted string by the oldest client versions
		return parsePointerString(trimmed)
	}
}

// parsePointerString handles bare-string pointers. The string may itself
// be JSON (a doubly-encoded pointer); malformed JSON falls back to
// treating it as a literal URL.
func parsePointerString(s string) (*ReceiptPointer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrPointerNotReady
	}
	if s[0] == '{' || s[0] == '[' {
		if ptr, err := ParseReceiptPointer(json.RawMessage(s)); err == nil {
			return ptr, nil
		}
	}
	return &ReceiptPointer{Kind: PointerInline, URL: s}, nil
}

func pointerFromObject(obj rawPointer) (*ReceiptPointer, error) {
	switch obj.Storage {
	case "primary-blob":
		if obj.Bucket == "" || obj.Path == "" {
			return nil, ErrPointerNotReady
		}
		return &ReceiptPointer{
			Kind:     PointerBlob,
			Bucket:   obj.Bucket,
			Path:     obj.Path,
			Type:     obj.Type,
			Filename: obj.Filename,
		}, nil
	case "archive":
		if obj.BaseURL == "" || obj.Path == "" {
			return nil, ErrPointerNotReady
		}
		return &ReceiptPointer{
			Kind:    PointerArchive,
			BaseURL: obj.BaseURL,
			Path:    obj.Path,
			Type:    obj.Type,
		}, nil
	case "":
		if obj.URL == "" {
			return nil, ErrPointerNotReady
		}
		return &ReceiptPointer{Kind: PointerInline, URL: obj.URL}, nil
	default:
		return nil, ErrPointerNotReady
	}
}
