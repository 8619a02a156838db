package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidLLMResponse = errors.New("invalid LLM response format")

// ExtractedExpense is one expense as reported by the model.
type ExtractedExpense struct {
	Name               string             `json:"name"`
	Category           string             `json:"category"`
	Price              Price              `json:"price"`
	Confidence         *float64           `json:"confidence"`
	FieldConfidence    map[string]float64 `json:"field_confidence"`
	NeedsClarification bool               `json:"needs_clarification"`
}

// Price accepts both JSON numbers and strings such as "₹50" or "10rs".
type Price struct {
	decimal.Decimal
}

func (p *Price) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		p.Decimal = decimal.Zero
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = s
	}
	d, err := normalizePrice(raw)
	if err != nil {
		// an unreadable price is a missing field, not a broken response
		p.Decimal = decimal.Zero
		return nil
	}
	p.Decimal = d
	return nil
}

var (
	priceNumberRe  = regexp.MustCompile(`([-−])?\s*[₹$€₽£]?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	trailingComma  = regexp.MustCompile(`,\s*([\]}])`)
	codeFenceStart = regexp.MustCompile("^```[a-zA-Z]*\\s*")
)

// normalizePrice strips currency markers ("₹", "$", "rs", "руб") and
// thousands separators and returns the first number found. A leading minus
// is kept, so refunds come out negative and read as a missing amount.
func normalizePrice(raw string) (decimal.Decimal, error) {
	m := priceNumberRe.FindStringSubmatch(raw)
	if m == nil {
		return decimal.Zero, fmt.Errorf("no number in %q", raw)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return decimal.Zero, err
	}
	if m[1] != "" {
		d = d.Neg()
	}
	return d, nil
}

// parseExtractedExpenses recovers the JSON array from a model reply. Code
// fences, a single object instead of an array, trailing commas and single
// quoted JSON are tolerated.
func parseExtractedExpenses(content string) ([]ExtractedExpense, error) {
	content = strings.TrimSpace(content)
	content = codeFenceStart.ReplaceAllString(content, "")
	content = strings.TrimSpace(strings.TrimSuffix(content, "```"))

	jsonStr := ""
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start != -1 && end > start {
		jsonStr = content[start : end+1]
	} else if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start != -1 && end > start {
		jsonStr = "[" + content[start:end+1] + "]"
	} else {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLLMResponse, content)
	}

	jsonStr = trailingComma.ReplaceAllString(jsonStr, "$1")

	var expenses []ExtractedExpense
	if err := json.Unmarshal([]byte(jsonStr), &expenses); err != nil {
		if strings.Contains(jsonStr, `"`) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLLMResponse, err)
		}
		if err := json.Unmarshal([]byte(strings.ReplaceAll(jsonStr, "'", `"`)), &expenses); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLLMResponse, err)
		}
	}
	return expenses, nil
}
