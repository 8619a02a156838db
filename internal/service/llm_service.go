package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"finman/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	gigachatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1"
	gigachatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	// GigaChat access tokens live for 30 minutes.
	accessTokenTTL = 25 * time.Minute
	minPromptText  = 3
)

var ErrNoLLMResponse = errors.New("no response from LLM")

type LLMService struct {
	client     *gigago.Client
	config     *config.GigaChatConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	oauthURL   string

	// complete sends a single user prompt to the chat model.
	complete func(ctx context.Context, prompt string) (string, error)

	tokenMu     sync.Mutex
	accessToken string
	tokenAt     time.Time
}

func buildSystemInstruction() string {
	return `You are an assistant that records personal expenses from chat messages and receipts.

For every expense mentioned in the input extract:
- "name": a short name of what was bought or paid for (max 60 characters)
- "category": exactly one of Food, Entertainment, Travel, Others
- "price": the amount as a plain positive number without currency symbols
- "confidence": a number between 0 and 1, how sure you are about the whole expense
- "field_confidence": an object with numbers between 0 and 1 for "name", "category" and "price"

Rules:
- Return ONLY a JSON array, no markdown, no comments before or after it.
- If a field cannot be determined leave it as an empty string (or 0 for price) and lower the confidence.
- Meals, groceries, cafes, snacks and drinks are Food. Movies, concerts, games and subscriptions are Entertainment.
  Taxis, fuel, tickets, hotels and public transport are Travel. Everything else is Others.
- For a receipt return one expense for the whole receipt: the store or the main item as name and the total as price.
- If the input contains no expense return an empty array: [].`
}

func NewLLMService(cfg *config.GigaChatConfig, logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = buildSystemInstruction()
	model.Temperature = 0.1

	httpClient := &http.Client{Timeout: 60 * time.Second}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	s := &LLMService{
		client:     client,
		config:     cfg,
		logger:     logger,
		httpClient: httpClient,
		baseURL:    gigachatBaseURL,
		oauthURL:   gigachatOAuthURL,
	}
	s.complete = func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.Generate(ctx, []gigago.Message{
			{Role: gigago.RoleUser, Content: prompt},
		})
		if err != nil {
			return "", fmt.Errorf("failed to generate response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoLLMResponse
		}
		return resp.Choices[0].Message.Content, nil
	}

	logger.Info("GigaChat client ready", zap.String("model", cfg.Model))
	return s, nil
}

// token returns a cached OAuth access token for the REST endpoints, fetching
// a new one when it is about to expire or force is set.
func (s *LLMService) token(ctx context.Context, force bool) (string, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	if !force && s.accessToken != "" && time.Since(s.tokenAt) < accessTokenTTL {
		return s.accessToken, nil
	}
	tok, err := getAccessToken(ctx, s.oauthURL, s.config, s.httpClient, s.logger)
	if err != nil {
		return "", err
	}
	s.accessToken, s.tokenAt = tok, time.Now()
	return tok, nil
}

// getAccessToken obtains an access token from the GigaChat OAuth endpoint.
// The API key is expected to be Base64-encoded already.
func getAccessToken(ctx context.Context, oauthURL string, cfg *config.GigaChatConfig, httpClient *http.Client, logger *zap.Logger) (string, error) {
	rqUID := uuid.New().String()

	formData := url.Values{}
	formData.Set("scope", cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", rqUID)
	req.Header.Set("Authorization", "Basic "+cfg.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("OAuth request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(bodyBytes)),
			zap.String("rq_uid", rqUID),
		)
		return "", fmt.Errorf("OAuth failed with status %d", resp.StatusCode)
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}

	logger.Info("Access token obtained", zap.Int64("expires_at", oauthResp.ExpiresAt))
	return oauthResp.AccessToken, nil
}

// ExtractExpenses asks the model for the expenses mentioned in text.
func (s *LLMService) ExtractExpenses(ctx context.Context, text string) ([]ExtractedExpense, error) {
	text = strings.TrimSpace(cleanText(text))
	if len([]rune(text)) < minPromptText {
		s.logger.Warn("Input is too short, skipping extraction", zap.Int("length", len(text)))
		return nil, nil
	}

	prompt := fmt.Sprintf("Extract the expenses from this message.\n\nMessage:\n%s\n\nReturn the JSON array only.", text)
	content, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	expenses, err := parseExtractedExpenses(content)
	if err != nil {
		s.logger.Warn("Unparseable extraction response",
			zap.String("response", content),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Expense extraction completed", zap.Int("count", len(expenses)))
	return expenses, nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
