package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	expenseBucketName  = "expenses"
	lineItemBucketName = "line_items"
)

// ErrExpenseNotFound is returned when no expense exists for an id
var ErrExpenseNotFound = errors.New("expense not found")

// Store defines the persistence operations the pipeline needs
type Store interface {
	// PutExpense creates or overwrites an expense record
	PutExpense(expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// ListExpenses returns all expenses
	ListExpenses() ([]*Expense, error)

	// AcquireProcessingLock attempts the conditional transition to
	// "processing". It returns false when another worker owns the record
	// or processing is already finished.
	AcquireProcessingLock(id string) (bool, error)

	// FinishProcessing moves an in-flight expense to a terminal or
	// retryable status and records the (possibly empty) error message
	FinishProcessing(id string, status ProcessingStatus, scanned bool, processingError string) error

	// ReplaceLineItems deletes every line item stored for the expense and
	// inserts the given set in one transaction
	ReplaceLineItems(expenseID string, items []*LineItem) error

	// ListLineItems returns the line items for an expense
	ListLineItems(expenseID string) ([]*LineItem, error)

	// Close closes the database connection
	Close() error
}

// BoltStore implements Store using BoltDB. Bolt serializes write
// transactions, which makes the status compare-and-swap in
// AcquireProcessingLock atomic across workers sharing the file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database file
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(expenseBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(lineItemBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// PutExpense creates or overwrites an expense record
func (b *BoltStore) PutExpense(expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putExpense(tx, expense)
	})
}

func putExpense(tx *bbolt.Tx, expense *Expense) error {
	data, err := json.Marshal(expense)
	if err != nil {
		return fmt.Errorf("marshaling expense: %w", err)
	}
	return tx.Bucket([]byte(expenseBucketName)).Put([]byte(expense.ID), data)
}

func getExpense(tx *bbolt.Tx, id string) (*Expense, error) {
	data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrExpenseNotFound, id)
	}
	var expense Expense
	if err := json.Unmarshal(data, &expense); err != nil {
		return nil, fmt.Errorf("unmarshaling expense: %w", err)
	}
	return &expense, nil
}

// GetExpense retrieves an expense by ID
func (b *BoltStore) GetExpense(id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		expense, err = getExpense(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (b *BoltStore) ListExpenses() ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &expense)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// lockable reports whether a new attempt may take over a record in this
// state. A record already in "processing" belongs to another in-flight
// worker and is left alone.
func lockable(status ProcessingStatus) bool {
	switch status {
	case StatusUnset, StatusPending, StatusFailed:
		return true
	}
	return false
}

// AcquireProcessingLock performs the conditional status transition that
// guards an expense against concurrent workers. The read-check-write runs
// inside a single serialized update transaction.
func (b *BoltStore) AcquireProcessingLock(id string) (bool, error) {
	acquired := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		expense, err := getExpense(tx, id)
		if err != nil {
			return err
		}
		if !expense.HasReceipt || expense.ReceiptScanned || !lockable(expense.ProcessingStatus) {
			return nil
		}
		expense.ProcessingStatus = StatusProcessing
		expense.ProcessingError = ""
		expense.UpdatedAt = time.Now()
		if err := putExpense(tx, expense); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// FinishProcessing records the attempt outcome on the expense
func (b *BoltStore) FinishProcessing(id string, status ProcessingStatus, scanned bool, processingError string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		expense, err := getExpense(tx, id)
		if err != nil {
			return err
		}
		expense.ProcessingStatus = status
		expense.ReceiptScanned = scanned
		expense.ProcessingError = processingError
		expense.UpdatedAt = time.Now()
		return putExpense(tx, expense)
	})
}

// lineItemKey namespaces items under their expense so a prefix scan finds
// everything belonging to one record. The ordinal suffix keeps listings in
// receipt order.
func lineItemKey(expenseID string, ordinal int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", expenseID, ordinal))
}

// ReplaceLineItems deletes all items for the expense and inserts the new
// set in one transaction, so a retried attempt fully supersedes an earlier
// partial write.
func (b *BoltStore) ReplaceLineItems(expenseID string, items []*LineItem) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(lineItemBucketName))
		prefix := []byte(expenseID + "/")

		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("deleting stale line item: %w", err)
			}
		}

		now := time.Now()
		for i, item := range items {
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.ExpenseID = expenseID
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshaling line item: %w", err)
			}
			if err := bucket.Put(lineItemKey(expenseID, i), data); err != nil {
				return fmt.Errorf("storing line item: %w", err)
			}
		}
		return nil
	})
}

// ListLineItems returns the line items for an expense
func (b *BoltStore) ListLineItems(expenseID string) ([]*LineItem, error) {
	items := make([]*LineItem, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(lineItemBucketName))
		prefix := []byte(expenseID + "/")

		cursor := bucket.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = cursor.Next() {
			var item LineItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling line item: %w", err)
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
