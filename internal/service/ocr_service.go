package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// imageReader turns an image into plain text. *LLMService is the production one.
type imageReader interface {
	ExtractTextFromImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

type OCRService struct {
	vision imageReader
	logger *zap.Logger
}

// NewOCRService reads PDFs locally with go-fitz and images with GigaChat Vision.
func NewOCRService(vision imageReader, logger *zap.Logger) *OCRService {
	return &OCRService{
		vision: vision,
		logger: logger,
	}
}

// ExtractText extracts text from an image or PDF. Supported formats: jpeg,
// png, webp and pdf. An empty mimeType is sniffed from the data.
func (s *OCRService) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])

	var (
		text   string
		err    error
		method string
	)
	switch mimeType {
	case "application/pdf":
		method = "go-fitz"
		text, err = s.extractTextFromPDF(data)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from PDF: %w", err)
		}
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		method = "GigaChat Vision"
		text, err = s.vision.ExtractTextFromImage(ctx, data, mimeType)
		if err != nil {
			return "", fmt.Errorf("failed to extract text with GigaChat Vision: %w", err)
		}
	default:
		return "", fmt.Errorf("unsupported file format: %s (supported: jpg, png, webp, pdf)", mimeType)
	}

	text = strings.TrimSpace(cleanText(text))
	s.logger.Info("OCR extraction completed",
		zap.String("mime", mimeType),
		zap.String("method", method),
		zap.Int("text_length", len(text)),
	)
	if text == "" {
		return "", ErrNoTextFound
	}
	return text, nil
}

func (s *OCRService) extractTextFromPDF(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			s.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}

	text := strings.TrimSpace(textBuilder.String())
	if text == "" {
		return "", ErrNoTextFound
	}

	s.logger.Info("PDF text extracted using go-fitz",
		zap.Int("pages", doc.NumPage()),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}
