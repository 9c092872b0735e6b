package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pennyledger/receipt-pipeline/internal/extraction"
	"github.com/pennyledger/receipt-pipeline/internal/secrets"
)

const (
	// pointer availability polling: the record can be locked before the
	// client finishes uploading the receipt
	pointerPollAttempts = 6
	pointerPollDelay    = 650 * time.Millisecond

	// extraction retry budget per processing run
	extractionAttempts = 3
	extractionBackoff  = 600 * time.Millisecond

	// errorMessageLimit bounds what gets stored on the expense record
	errorMessageLimit = 500
)

// Outcome classifies how a processing run ended
type Outcome string

const (
	// OutcomeNoOp means the lock was not acquired: another worker owns the
	// record or processing already finished
	OutcomeNoOp Outcome = "noop"
	// OutcomeSkipped means the expense is not a grocery expense
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRetryLater means the receipt pointer never became available;
	// the caller should re-invoke once the upload lands
	OutcomeRetryLater Outcome = "retry_later"
	// OutcomeCompleted means items were extracted and persisted
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means every extraction attempt failed
	OutcomeFailed Outcome = "failed"
	// OutcomeConfigError means required credentials or config are missing
	OutcomeConfigError Outcome = "config_error"
)

// Result reports the outcome of one processing run
type Result struct {
	Outcome   Outcome `json:"outcome"`
	ItemCount int     `json:"itemCount,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Processor drives the receipt-processing state machine for one expense at
// a time. Instances hold no per-expense state; concurrency safety comes
// entirely from the store's conditional status transition.
type Processor struct {
	store      Store
	resolver   *Resolver
	ocr        extraction.TextExtractor
	extractor  extraction.StructuredExtractor
	timeSource TimeSource
	sleep      func(time.Duration)
}

// NewProcessor creates a Processor with the default clock and sleeper
func NewProcessor(store Store, resolver *Resolver, ocr extraction.TextExtractor, extractor extraction.StructuredExtractor) *Processor {
	return &Processor{
		store:      store,
		resolver:   resolver,
		ocr:        ocr,
		extractor:  extractor,
		timeSource: &defaultTimeSource{},
		sleep:      time.Sleep,
	}
}

// NewProcessorWithDeps creates a Processor with custom clock and sleeper
// for testing
func NewProcessorWithDeps(store Store, resolver *Resolver, ocr extraction.TextExtractor, extractor extraction.StructuredExtractor, timeSource TimeSource, sleep func(time.Duration)) *Processor {
	return &Processor{
		store:      store,
		resolver:   resolver,
		ocr:        ocr,
		extractor:  extractor,
		timeSource: timeSource,
		sleep:      sleep,
	}
}

// isGroceryCategory reports whether the expense category semantically
// means groceries ("grocery", "Groceries", "Grocer ...")
func isGroceryCategory(category string) bool {
	return strings.Contains(strings.ToLower(category), "grocer")
}

// Process runs the full pipeline for one expense: acquire the processing
// lock, filter by category, wait for the receipt pointer, then extract,
// normalize and persist line items with bounded retries. Every path leaves
// the record in a terminal or explicitly retryable status.
func (p *Processor) Process(ctx context.Context, expenseID string) (*Result, error) {
	acquired, err := p.store.AcquireProcessingLock(expenseID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		slog.Info("Processing lock not acquired, nothing to do", "expense", expenseID)
		return &Result{Outcome: OutcomeNoOp}, nil
	}

	result, err := p.runLocked(ctx, expenseID)
	if err != nil {
		// the record must never stay in processing permanently; put it
		// back to pending so a later trigger can retry
		if ferr := p.store.FinishProcessing(expenseID, StatusPending, false, truncateError(err.Error())); ferr != nil {
			slog.Error("Failed to release processing lock", "expense", expenseID, "error", ferr)
		}
		return nil, err
	}
	return result, nil
}

// runLocked is the state machine body once the processing lock is held.
// Callers own releasing the lock when it returns an error.
func (p *Processor) runLocked(ctx context.Context, expenseID string) (*Result, error) {
	expense, err := p.store.GetExpense(expenseID)
	if err != nil {
		return nil, err
	}

	if !isGroceryCategory(expense.Category) {
		slog.Info("Skipping non-grocery expense", "expense", expenseID, "category", expense.Category)
		if err := p.store.FinishProcessing(expenseID, StatusSkipped, true, ""); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeSkipped}, nil
	}

	pointer := p.waitForPointer(expenseID)
	if pointer == nil {
		message := "receipt pointer not yet available"
		if err := p.store.FinishProcessing(expenseID, StatusPending, false, message); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeRetryLater, Error: message}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= extractionAttempts; attempt++ {
		count, attemptErr := p.runAttempt(ctx, expense, pointer)
		if attemptErr == nil {
			if err := p.store.FinishProcessing(expenseID, StatusCompleted, true, ""); err != nil {
				return nil, err
			}
			slog.Info("Receipt processed", "expense", expenseID, "items", count, "attempt", attempt)
			return &Result{Outcome: OutcomeCompleted, ItemCount: count}, nil
		}

		if errors.Is(attemptErr, secrets.ErrNotFound) {
			// missing credentials will not fix themselves on retry
			message := truncateError(attemptErr.Error())
			if err := p.store.FinishProcessing(expenseID, StatusFailed, false, message); err != nil {
				return nil, err
			}
			return &Result{Outcome: OutcomeConfigError, Error: message}, nil
		}

		lastErr = attemptErr
		slog.Warn("Extraction attempt failed", "expense", expenseID, "attempt", attempt, "error", attemptErr)
		if attempt < extractionAttempts {
			p.sleep(extractionBackoff * time.Duration(attempt))
		}
	}

	message := truncateError(lastErr.Error())
	if err := p.store.FinishProcessing(expenseID, StatusFailed, false, message); err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeFailed, Error: message}, nil
}

// waitForPointer polls for the receipt pointer with linear backoff,
// re-reading the record each time since the upload may land mid-poll
func (p *Processor) waitForPointer(expenseID string) *ReceiptPointer {
	for attempt := 1; attempt <= pointerPollAttempts; attempt++ {
		expense, err := p.store.GetExpense(expenseID)
		if err == nil {
			pointer, perr := ParseReceiptPointer(expense.ReceiptPointer)
			if perr == nil {
				return pointer
			}
		}
		if attempt < pointerPollAttempts {
			p.sleep(pointerPollDelay * time.Duration(attempt))
		}
	}
	return nil
}

// runAttempt performs one full extraction and persistence pass
func (p *Processor) runAttempt(ctx context.Context, expense *Expense, pointer *ReceiptPointer) (int, error) {
	source, err := p.resolver.Resolve(ctx, pointer)
	if err != nil {
		return 0, fmt.Errorf("resolving receipt pointer: %w", err)
	}

	image, contentType, err := p.resolver.Fetch(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("fetching receipt: %w", err)
	}

	receipt, err := p.extract(ctx, image, contentType)
	if err != nil {
		return 0, err
	}

	normalized := NormalizeLineItems(receipt.Items)
	if len(normalized) == 0 {
		return 0, errors.New("no line items extracted from receipt")
	}

	items := p.buildLineItems(expense, receipt, normalized)
	if err := p.store.ReplaceLineItems(expense.ID, items); err != nil {
		return 0, fmt.Errorf("persisting line items: %w", err)
	}
	return len(items), nil
}

// extract runs structured extraction, going through OCR only when the
// extractor cannot read images itself
func (p *Processor) extract(ctx context.Context, image []byte, contentType string) (*extraction.Receipt, error) {
	if imageExtractor, ok := p.extractor.(extraction.ImageStructuredExtractor); ok {
		receipt, err := imageExtractor.ExtractFromImage(ctx, image, contentType)
		if err != nil {
			return nil, fmt.Errorf("structured extraction: %w", err)
		}
		return receipt, nil
	}

	if p.ocr == nil {
		return nil, fmt.Errorf("text extractor: %w", secrets.ErrNotFound)
	}

	text, err := p.ocr.ExtractText(ctx, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("text extraction: %w", err)
	}

	receipt, err := p.extractor.ExtractFromText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("structured extraction: %w", err)
	}
	return receipt, nil
}

// buildLineItems converts normalized items into persistable records
func (p *Processor) buildLineItems(expense *Expense, receipt *extraction.Receipt, normalized []NormalizedItem) []*LineItem {
	purchaseDate, ok := extraction.ParseReceiptDate(receipt.Date)
	if !ok {
		purchaseDate = expense.Date()
	}
	store := strings.TrimSpace(receipt.Store)

	items := make([]*LineItem, 0, len(normalized))
	for _, n := range normalized {
		name := n.Name
		if n.Unit != "ea" && n.Unit != "each" {
			name = fmt.Sprintf("%s (%s)", name, n.Unit)
		}
		items = append(items, &LineItem{
			ExpenseID:    expense.ID,
			ItemName:     name,
			Quantity:     n.Quantity,
			QuantityUnit: n.Unit,
			UnitPrice:    n.UnitPrice,
			TotalPrice:   n.TotalPrice,
			Store:        store,
			PurchaseDate: purchaseDate,
			CreatedAt:    p.timeSource.Now(),
		})
	}
	return items
}

func truncateError(message string) string {
	if len(message) <= errorMessageLimit {
		return message
	}
	cut := errorMessageLimit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
