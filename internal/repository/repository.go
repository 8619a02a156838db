package repository

import (
	"errors"
	"fmt"

	"finman/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidData = errors.New("invalid record")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"

	defaultListLimit = 50
	maxListLimit     = 500
)

var expenseColumns = []string{"id", "conversation_id", "user_id", "name", "category", "amount", "source", "committed_at"}

var userColumns = []string{"id", "username", "email", "password", "created_at", "updated_at"}

func listLimit(limit int) uint64 {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return uint64(limit)
}

// checkExpense repeats the commit validation at the storage boundary.
func checkExpense(e *models.Expense) error {
	if !models.AmountInRange(e.Amount) {
		return fmt.Errorf("%w: amount %s out of range", ErrInvalidData, e.Amount.String())
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: category %q", ErrInvalidData, e.Category)
	}
	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalidData, s)
	}
	return d, nil
}
