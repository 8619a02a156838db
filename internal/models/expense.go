package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ExpenseCategory string

const (
	CategoryFood          ExpenseCategory = "Food"
	CategoryEntertainment ExpenseCategory = "Entertainment"
	CategoryTravel        ExpenseCategory = "Travel"
	CategoryOther         ExpenseCategory = "Other"
)

// Categories lists the closed category enum in display order.
var Categories = []ExpenseCategory{CategoryFood, CategoryEntertainment, CategoryTravel, CategoryOther}

// Valid reports whether c is one of the closed enum values.
func (c ExpenseCategory) Valid() bool {
	switch c {
	case CategoryFood, CategoryEntertainment, CategoryTravel, CategoryOther:
		return true
	}
	return false
}

// ParseCategory matches raw case-insensitively against the enum. ok is false
// for blank input; any unrecognized value maps to Other.
func ParseCategory(raw string) (category ExpenseCategory, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, c := range Categories {
		if strings.EqualFold(raw, string(c)) {
			return c, true
		}
	}
	return CategoryOther, true
}

// IsKnownCategory is like ParseCategory but does not fall back to Other.
func IsKnownCategory(raw string) bool {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(raw, string(c)) {
			return true
		}
	}
	return strings.EqualFold(raw, "others")
}

// MaxAmount is the largest amount every storage backend can hold
// (NUMERIC(14,2) in Postgres).
var MaxAmount = decimal.RequireFromString("999999999999.99")

// AmountInRange reports whether a is a storable positive amount in cents.
func AmountInRange(a decimal.Decimal) bool {
	return a.IsPositive() && a.LessThanOrEqual(MaxAmount)
}

type ExpenseSource string

const (
	SourceText  ExpenseSource = "text"
	SourcePhoto ExpenseSource = "photo"
)

// Expense is a committed expense record. It is never updated once stored.
type Expense struct {
	ID             uuid.UUID       `db:"id"`
	ConversationID uuid.UUID       `db:"conversation_id"`
	UserID         string          `db:"user_id"`
	Name           string          `db:"name"`
	Category       ExpenseCategory `db:"category"`
	Amount         decimal.Decimal `db:"amount"`
	Source         ExpenseSource   `db:"source"`
	CommittedAt    time.Time       `db:"committed_at"`
}
