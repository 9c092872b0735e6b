package expense

import (
	"encoding/json"
	"time"
)

// ProcessingStatus is the receipt-processing lifecycle state of an expense
type ProcessingStatus string

const (
	StatusUnset      ProcessingStatus = ""
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusSkipped    ProcessingStatus = "skipped"
)

// Expense is a budget expense record with an optional attached receipt.
// The pipeline only drives the receipt-processing fields; the rest belongs
// to the client application.
type Expense struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`

	// ReceiptPointer holds the stored pointer value verbatim. Legacy
	// records carry bare strings or JSON-encoded strings here, so it is
	// parsed on read rather than at rest.
	ReceiptPointer json.RawMessage `json:"receiptPointer,omitempty"`

	HasReceipt       bool             `json:"hasReceipt"`
	ReceiptScanned   bool             `json:"receiptScanned"`
	ProcessingStatus ProcessingStatus `json:"processingStatus,omitempty"`
	ProcessingError  string           `json:"processingError,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Date returns the expense date, used as the fallback purchase date when
// the receipt itself has no parseable date
func (e *Expense) Date() time.Time {
	return time.Date(e.Year, time.Month(e.Month), e.Day, 0, 0, 0, 0, time.UTC)
}

// LineItem is one extracted receipt line, written to a child collection
// keyed by expense id. Items are replaced wholesale on each successful
// extraction attempt and never mutated in place.
type LineItem struct {
	ID           string    `json:"id"`
	ExpenseID    string    `json:"expenseId"`
	ItemName     string    `json:"itemName"`
	Quantity     float64   `json:"quantity"`
	QuantityUnit string    `json:"quantityUnit"`
	UnitPrice    float64   `json:"unitPrice"`
	TotalPrice   float64   `json:"totalPrice"`
	Store        string    `json:"store"`
	PurchaseDate time.Time `json:"purchaseDate"`
	CreatedAt    time.Time `json:"created_at"`
}
