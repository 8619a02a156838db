package service

import (
	"context"
	"fmt"
	"strings"

	"finman/internal/dialog"

	"go.uber.org/zap"
)

type expenseExtractor interface {
	ExtractExpenses(ctx context.Context, text string) ([]ExtractedExpense, error)
}

type textReader interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

const (
	// used when the model reports no confidence of its own
	defaultCompleteConfidence   = 0.9
	defaultIncompleteConfidence = 0.5
	// ceiling for results the model itself flags as unclear
	clarificationConfidenceCap = 0.5
)

// ExtractionService is the extraction port of the dialog engine: receipts go
// through OCR first, then the text is handed to the LLM.
type ExtractionService struct {
	llm    expenseExtractor
	ocr    textReader
	logger *zap.Logger
}

func NewExtractionService(llm expenseExtractor, ocr textReader, logger *zap.Logger) *ExtractionService {
	return &ExtractionService{
		llm:    llm,
		ocr:    ocr,
		logger: logger,
	}
}

func (s *ExtractionService) Extract(ctx context.Context, content dialog.Content) ([]dialog.Candidate, error) {
	text := strings.TrimSpace(content.Text)
	if content.IsImage() {
		receipt, err := s.ocr.ExtractText(ctx, content.Image, content.MIME)
		if err != nil {
			return nil, fmt.Errorf("failed to read receipt: %w", err)
		}
		if text != "" {
			text = "Caption: " + text + "\n\nReceipt:\n" + receipt
		} else {
			text = receipt
		}
	}

	extracted, err := s.llm.ExtractExpenses(ctx, text)
	if err != nil {
		return nil, err
	}

	cands := make([]dialog.Candidate, 0, len(extracted))
	for _, e := range extracted {
		cands = append(cands, toCandidate(e))
	}
	return cands, nil
}

func toCandidate(e ExtractedExpense) dialog.Candidate {
	c := dialog.NewCandidate(e.Name, e.Category, e.Price.Decimal, 0)

	switch {
	case e.Confidence != nil:
		c.Confidence = clampConfidence(*e.Confidence)
	case c.Complete():
		c.Confidence = defaultCompleteConfidence
	default:
		c.Confidence = defaultIncompleteConfidence
	}
	if e.NeedsClarification && c.Confidence > clarificationConfidenceCap {
		c.Confidence = clarificationConfidenceCap
	}

	if len(e.FieldConfidence) > 0 {
		c.FieldConfidence = make(map[dialog.Field]float64, len(e.FieldConfidence))
		for k, v := range e.FieldConfidence {
			switch strings.ToLower(k) {
			case "name":
				c.FieldConfidence[dialog.FieldName] = clampConfidence(v)
			case "category":
				c.FieldConfidence[dialog.FieldCategory] = clampConfidence(v)
			case "price", "amount":
				c.FieldConfidence[dialog.FieldAmount] = clampConfidence(v)
			}
		}
	}
	return c
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
