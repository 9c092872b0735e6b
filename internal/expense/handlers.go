package expense

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxTriggerBody bounds the webhook payload size
const maxTriggerBody = 1 << 20

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// resolveExpenseID digs the expense id out of a trigger payload. Webhooks
// and clients send several shapes: a direct field, the changed row nested
// under "record"/"new"/"new_record"/"data", or a bare "id". First
// non-empty match wins.
func resolveExpenseID(payload []byte) string {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return ""
	}

	if id := stringField(root, "expenseId", "expense_id"); id != "" {
		return id
	}

	for _, key := range []string{"record", "new", "new_record", "data"} {
		raw, ok := root[key]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		if id := stringField(nested, "expenseId", "expense_id", "id"); id != "" {
			return id
		}
	}

	return stringField(root, "id")
}

func stringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err == nil && value != "" {
			return value
		}
	}
	return ""
}

// handleProcess triggers receipt processing for one expense
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
	if err != nil {
		corsError(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	expenseID := resolveExpenseID(payload)
	if expenseID == "" {
		corsError(w, "Expense ID required", http.StatusBadRequest)
		return
	}

	result, err := s.processor.Process(r.Context(), expenseID)
	if err != nil {
		if errors.Is(err, ErrExpenseNotFound) {
			corsError(w, "Expense not found", http.StatusNotFound)
			return
		}
		slog.Error("Error processing expense", "expense", expenseID, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusCodeFor(result.Outcome), result)
}

// statusCodeFor maps processing outcomes onto HTTP status codes. A
// retryable outcome gets 503 so schedulers re-invoke; exhausted extraction
// gets 502 since the failure is upstream.
func statusCodeFor(outcome Outcome) int {
	switch outcome {
	case OutcomeRetryLater:
		return http.StatusServiceUnavailable
	case OutcomeFailed:
		return http.StatusBadGateway
	case OutcomeConfigError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// createExpenseRequest mirrors what the client application stores when a
// receipt is attached
type createExpenseRequest struct {
	ID             string          `json:"id"`
	Category       string          `json:"category"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Day            int             `json:"day"`
	ReceiptPointer json.RawMessage `json:"receiptPointer"`
	HasReceipt     bool            `json:"hasReceipt"`
}

// handleCreateExpense creates an expense record awaiting processing
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Year == 0 {
		req.Year, req.Month, req.Day = now.Year(), int(now.Month()), now.Day()
	}

	expense := &Expense{
		ID:             req.ID,
		Category:       req.Category,
		Year:           req.Year,
		Month:          req.Month,
		Day:            req.Day,
		ReceiptPointer: req.ReceiptPointer,
		HasReceipt:     req.HasReceipt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if expense.HasReceipt {
		expense.ProcessingStatus = StatusPending
	}

	if err := s.store.PutExpense(expense); err != nil {
		slog.Error("Error saving expense", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Expense ID required", http.StatusBadRequest)
		return
	}

	expense, err := s.store.GetExpense(id)
	if err != nil {
		corsError(w, "Expense not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

// handleListExpenses returns all expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.store.ListExpenses()
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if expenses == nil {
		expenses = []*Expense{}
	}

	writeJSON(w, http.StatusOK, expenses)
}

// handleListLineItems returns the extracted line items for an expense
func (s *Server) handleListLineItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Expense ID required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetExpense(id); err != nil {
		corsError(w, "Expense not found", http.StatusNotFound)
		return
	}

	items, err := s.store.ListLineItems(id)
	if err != nil {
		slog.Error("Error listing line items", "expense", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if items == nil {
		items = []*LineItem{}
	}

	writeJSON(w, http.StatusOK, items)
}
