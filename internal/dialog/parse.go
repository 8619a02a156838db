package dialog

import (
	"fmt"
	"regexp"
	"strings"

	"finman/internal/models"

	"github.com/shopspring/decimal"
)

type fieldValue struct {
	text     string
	amount   decimal.Decimal
	category models.ExpenseCategory
}

var (
	confirmWords = map[string]bool{"confirm": true, "/confirm": true, "yes": true, "y": true, "ok": true, "okay": true, "save": true}
	cancelWords  = map[string]bool{"cancel": true, "/cancel": true, "no": true, "n": true, "stop": true}

	fieldAliases = map[string]Field{
		"amount":   FieldAmount,
		"price":    FieldAmount,
		"cost":     FieldAmount,
		"sum":      FieldAmount,
		"category": FieldCategory,
		"cat":      FieldCategory,
		"name":     FieldName,
		"title":    FieldName,
		"item":     FieldName,
	}

	currencyRe = regexp.MustCompile(`(?i)^(?:rs\.?|inr|usd|eur|rub|руб\.?|[₹$€₽£])?\s*([0-9][0-9.,\s]*)\s*(?:rs\.?|inr|usd|eur|rub|руб\.?|р\.?|[₹$€₽£])?$`)
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdConfirm
	cmdCancel
	cmdEdit
)

type command struct {
	kind     commandKind
	explicit bool // the "edit" keyword was used
	bare     bool // a lone amount or category, no field named
	field    Field
	raw      string
}

func normalizeReply(text string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!"))
}

// isExplicitCancel matches only the cancel command itself. While a question
// is pending, "no" may be a real answer.
func isExplicitCancel(text string) bool {
	norm := normalizeReply(text)
	return norm == "cancel" || norm == "/cancel"
}

func isConfirmWord(text string) bool {
	return confirmWords[normalizeReply(text)]
}

// parseCommand reads a reply given to a confirmation prompt. Accepted edit
// forms are "edit <field> <value>", "<field> <value>", a bare amount and a
// bare category name.
func parseCommand(text string) command {
	norm := normalizeReply(text)
	switch {
	case norm == "":
		return command{}
	case confirmWords[norm]:
		return command{kind: cmdConfirm}
	case cancelWords[norm]:
		return command{kind: cmdCancel}
	}

	words := strings.Fields(strings.TrimSpace(text))
	explicit := strings.EqualFold(words[0], "edit")
	if explicit {
		words = words[1:]
	}
	if len(words) >= 2 {
		if f, ok := fieldAliases[strings.ToLower(strings.TrimSuffix(words[0], ":"))]; ok {
			return command{kind: cmdEdit, explicit: explicit, field: f, raw: strings.Join(words[1:], " ")}
		}
	}
	if explicit {
		// "edit" with no usable field still counts as an edit attempt
		return command{kind: cmdEdit, explicit: true}
	}
	if _, err := parseAmount(text); err == nil {
		return command{kind: cmdEdit, bare: true, field: FieldAmount, raw: text}
	}
	if models.IsKnownCategory(text) {
		return command{kind: cmdEdit, bare: true, field: FieldCategory, raw: text}
	}
	return command{}
}

// parseFieldValue validates a user supplied value for f. Categories typed by
// the user must be one of the enum names.
func parseFieldValue(f Field, raw string) (fieldValue, error) {
	raw = strings.TrimSpace(raw)
	switch f {
	case FieldAmount:
		a, err := parseAmount(raw)
		if err != nil {
			return fieldValue{}, err
		}
		return fieldValue{amount: a}, nil
	case FieldCategory:
		if !models.IsKnownCategory(raw) {
			return fieldValue{}, fmt.Errorf("%w: unknown category %q", ErrValidation, raw)
		}
		cat, _ := models.ParseCategory(raw)
		return fieldValue{category: cat}, nil
	case FieldName:
		if raw == "" {
			return fieldValue{}, fmt.Errorf("%w: empty name", ErrValidation)
		}
		return fieldValue{text: raw}, nil
	}
	return fieldValue{}, fmt.Errorf("%w: unknown field %q", ErrValidation, f)
}

// parseAmount accepts a positive number with an optional currency marker on
// either side ("50", "₹50", "10rs", "$4.50", "1,200"). A single comma
// followed by one or two digits is read as a decimal separator.
func parseAmount(raw string) (decimal.Decimal, error) {
	m := currencyRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return decimal.Zero, fmt.Errorf("%w: not an amount: %q", ErrValidation, raw)
	}
	num := strings.ReplaceAll(m[1], " ", "")
	if !strings.Contains(num, ".") && strings.Count(num, ",") == 1 {
		if i := strings.LastIndex(num, ","); len(num)-i-1 <= 2 {
			num = num[:i] + "." + num[i+1:]
		}
	}
	num = strings.ReplaceAll(num, ",", "")
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: not an amount: %q", ErrValidation, raw)
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be at least 0.01", ErrValidation)
	}
	if d.GreaterThan(models.MaxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount must not exceed %s", ErrValidation, models.MaxAmount.StringFixed(2))
	}
	return d, nil
}
