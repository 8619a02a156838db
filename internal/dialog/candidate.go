package dialog

import (
	"sort"
	"strings"

	"finman/internal/models"

	"github.com/shopspring/decimal"
)

type Field string

const (
	FieldAmount   Field = "amount"
	FieldCategory Field = "category"
	FieldName     Field = "name"
)

// requiredFields is also the ask priority when nothing else separates two fields.
var requiredFields = []Field{FieldAmount, FieldCategory, FieldName}

// Candidate is an unconfirmed expense draft. A zero Amount, an empty Category
// or an empty Name means the field is missing.
type Candidate struct {
	Name       string
	Category   models.ExpenseCategory
	Amount     decimal.Decimal
	Confidence float64
	// FieldConfidence optionally refines Confidence per field.
	FieldConfidence map[Field]float64

	resolved  map[Field]bool
	uncertain []Field
}

// NewCandidate normalizes raw extractor output: category is mapped onto the
// closed enum, amount is rounded to cents, confidence is clamped to [0,1].
// An amount outside (0, models.MaxAmount] is treated as missing.
func NewCandidate(name, category string, amount decimal.Decimal, confidence float64) Candidate {
	c := Candidate{
		Name:       strings.TrimSpace(name),
		Amount:     amount.Round(2),
		Confidence: clamp01(confidence),
	}
	if cat, ok := models.ParseCategory(category); ok {
		c.Category = cat
	}
	if !models.AmountInRange(c.Amount) {
		c.Amount = decimal.Zero
	}
	return c
}

func (c *Candidate) has(f Field) bool {
	switch f {
	case FieldAmount:
		return c.Amount.IsPositive()
	case FieldCategory:
		return c.Category != ""
	case FieldName:
		return c.Name != ""
	}
	return false
}

// Missing returns the absent required fields in ask priority order.
func (c *Candidate) Missing() []Field {
	var out []Field
	for _, f := range requiredFields {
		if !c.has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (c *Candidate) Complete() bool {
	return len(c.Missing()) == 0
}

func (c *Candidate) populated() int {
	return len(requiredFields) - len(c.Missing())
}

func (c *Candidate) fieldConfidence(f Field) float64 {
	if c.resolved[f] {
		return 1
	}
	if !c.has(f) {
		return 0
	}
	if v, ok := c.FieldConfidence[f]; ok {
		return clamp01(v)
	}
	return c.Confidence
}

// set writes a user supplied value. The value must already be validated.
func (c *Candidate) set(f Field, v fieldValue) {
	switch f {
	case FieldAmount:
		c.Amount = v.amount
	case FieldCategory:
		c.Category = v.category
	case FieldName:
		c.Name = v.text
	}
	if c.resolved == nil {
		c.resolved = make(map[Field]bool, len(requiredFields))
	}
	c.resolved[f] = true
}

func (c Candidate) clone() Candidate {
	if c.FieldConfidence != nil {
		fc := make(map[Field]float64, len(c.FieldConfidence))
		for k, v := range c.FieldConfidence {
			fc[k] = v
		}
		c.FieldConfidence = fc
	}
	if c.resolved != nil {
		r := make(map[Field]bool, len(c.resolved))
		for k, v := range c.resolved {
			r[k] = v
		}
		c.resolved = r
	}
	c.uncertain = append([]Field(nil), c.uncertain...)
	return c
}

// Policy holds the thresholds that drive the clarification loop.
type Policy struct {
	HighConfidence float64
	LowConfidence  float64
	MaxTurns       int
}

// classify records which fields the user has to settle before the candidate
// can go to confirmation: missing fields, fields rated below the high
// threshold, and every field when only a low overall rating is known.
func (p Policy) classify(c *Candidate) {
	var out []Field
	for _, f := range requiredFields {
		if !c.has(f) {
			out = append(out, f)
			continue
		}
		if v, ok := c.FieldConfidence[f]; ok && v < p.HighConfidence {
			out = append(out, f)
		}
	}
	if len(out) == 0 && c.Confidence < p.HighConfidence {
		out = append(out, requiredFields...)
	}
	c.uncertain = out
}

// Score is the confidence of c after the user's answers. The uncertainty left
// by extraction is spread evenly over the uncertain fields and every resolved
// one removes its share.
func (p Policy) Score(c *Candidate) float64 {
	if len(c.uncertain) == 0 {
		return c.Confidence
	}
	remaining := len(p.open(c))
	return 1 - (1-c.Confidence)*float64(remaining)/float64(len(c.uncertain))
}

// Ready reports whether c can be shown for confirmation.
func (p Policy) Ready(c *Candidate) bool {
	return c.Complete() && p.Score(c) >= p.HighConfidence
}

func (p Policy) open(c *Candidate) []Field {
	var out []Field
	for _, f := range c.uncertain {
		if !c.resolved[f] {
			out = append(out, f)
		}
	}
	return out
}

// NextQuestion picks the most informative open field: missing before
// uncertain, then the lowest field confidence, then the fixed priority.
func (p Policy) NextQuestion(c *Candidate) (Field, bool) {
	open := p.open(c)
	for _, f := range c.Missing() {
		if !containsField(open, f) {
			open = append(open, f)
		}
	}
	if len(open) == 0 {
		return "", false
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if c.has(a) != c.has(b) {
			return !c.has(a)
		}
		if ca, cb := c.fieldConfidence(a), c.fieldConfidence(b); ca != cb {
			return ca < cb
		}
		return priority(a) < priority(b)
	})
	return open[0], true
}

// bestEffort fills what can be defaulted once the turn budget is spent.
func (p Policy) bestEffort(c *Candidate) {
	if c.Category == "" {
		c.Category = models.CategoryOther
	}
}

// pickCandidate applies the tie-break: highest confidence, then the most
// populated fields, then extraction order.
func pickCandidate(cands []Candidate) (Candidate, bool) {
	best := -1
	for i := range cands {
		if cands[i].populated() == 0 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := &cands[best]
		switch {
		case cands[i].Confidence > b.Confidence:
			best = i
		case cands[i].Confidence == b.Confidence && cands[i].populated() > b.populated():
			best = i
		}
	}
	if best < 0 {
		return Candidate{}, false
	}
	return cands[best].clone(), true
}

func priority(f Field) int {
	for i, r := range requiredFields {
		if r == f {
			return i
		}
	}
	return len(requiredFields)
}

func containsField(fs []Field, f Field) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
