package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	errUnauthorized = errors.New("gigachat: unauthorized")
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")
	ErrNoTextFound  = errors.New("no text found")
)

const receiptPrompt = `Read this receipt or photo and write out all text you can see, line by line.
Keep item names, quantities, prices and the total exactly as printed. Do not summarise and do not add comments.`

// refusalPhrases mark a model reply that is a refusal rather than extracted text.
var refusalPhrases = []string{
	"не могу помочь",
	"не могу обработать",
	"не могу извлечь",
	"cannot help",
	"cannot process",
	"please provide",
}

// withToken runs call with a cached access token and retries once with a
// fresh token when the API answers 401.
func (s *LLMService) withToken(ctx context.Context, call func(token string) error) error {
	tok, err := s.token(ctx, false)
	if err != nil {
		return err
	}
	err = call(tok)
	if !errors.Is(err, errUnauthorized) {
		return err
	}
	if tok, err = s.token(ctx, true); err != nil {
		return err
	}
	return call(tok)
}

// UploadFile uploads data to GigaChat storage and returns the file id.
func (s *LLMService) UploadFile(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	var fileID string
	err := s.withToken(ctx, func(token string) error {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		// "general" allows using the file in chat completions
		if err := writer.WriteField("purpose", "general"); err != nil {
			return fmt.Errorf("failed to write purpose field: %w", err)
		}
		part, err := writer.CreatePart(map[string][]string{
			"Content-Type":        {mimeType},
			"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)},
		})
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("failed to copy file: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("failed to close writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/files", &body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to upload file: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return errUnauthorized
		case resp.StatusCode == http.StatusRequestEntityTooLarge:
			return ErrFileTooLarge
		case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
			bodyBytes, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}

		var uploadResp struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		fileID = uploadResp.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("File uploaded to GigaChat", zap.String("file_id", fileID))
	return fileID, nil
}

// ExtractTextFromImage reads the text of a receipt photo with the vision model.
func (s *LLMService) ExtractTextFromImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	fileID, err := s.UploadFile(ctx, data, "receipt"+extensionFor(mimeType), mimeType)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.ExtractTextViaVisionAPI(ctx, fileID, receiptPrompt)
}

// ExtractTextViaVisionAPI runs a chat completion with the uploaded file attached.
func (s *LLMService) ExtractTextViaVisionAPI(ctx context.Context, fileID, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model": s.config.Model,
		"messages": []map[string]interface{}{
			{
				"role":        "user",
				"content":     prompt,
				"attachments": []string{fileID},
			},
		},
		"temperature": 0.1,
		"stream":      false,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var text string
	err = s.withToken(ctx, func(token string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			return errUnauthorized
		}
		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("vision API failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}

		var visionResp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&visionResp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(visionResp.Choices) == 0 {
			return ErrNoLLMResponse
		}
		text = strings.TrimSpace(visionResp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}

	textLower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(textLower, phrase) {
			s.logger.Warn("Vision model refused to extract text", zap.String("message", text))
			return "", ErrNoTextFound
		}
	}
	if text == "" {
		return "", ErrNoTextFound
	}

	s.logger.Info("Text extracted via GigaChat Vision",
		zap.String("file_id", fileID),
		zap.Int("text_length", len(text)),
	)
	return text, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}
