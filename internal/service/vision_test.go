package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"finman/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLLMService(t *testing.T, handler http.Handler) *LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &LLMService{
		config:     &config.GigaChatConfig{APIKey: "key", Scope: "GIGACHAT_API_PERS", Model: "GigaChat"},
		logger:     zap.NewNop(),
		httpClient: srv.Client(),
		baseURL:    srv.URL + "/api/v1",
		oauthURL:   srv.URL + "/oauth",
	}
}

func TestExtractTextFromImageRefreshesExpiredToken(t *testing.T) {
	var tokens atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic key", r.Header.Get("Authorization"))
		n := tokens.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": map[int32]string{1: "stale", 2: "fresh"}[n]})
	})
	mux.HandleFunc("/api/v1/files", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "general", r.FormValue("purpose"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "file-1"})
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Attachments []string `json:"attachments"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"file-1"}, body.Messages[0].Attachments)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "CAFE\nTOTAL 50.00"}}},
		})
	})

	s := newTestLLMService(t, mux)
	text, err := s.ExtractTextFromImage(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "CAFE\nTOTAL 50.00", text)
	assert.Equal(t, int32(2), tokens.Load())
}

func TestVisionRefusalIsNoText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "Sorry, I cannot help with this request."}}},
		})
	})

	s := newTestLLMService(t, mux)
	_, err := s.ExtractTextViaVisionAPI(context.Background(), "file-1", receiptPrompt)
	assert.ErrorIs(t, err, ErrNoTextFound)
}

func TestOCRServiceRejectsUnsupportedFormat(t *testing.T) {
	s := NewOCRService(nil, zap.NewNop())
	_, err := s.ExtractText(context.Background(), []byte("plain text"), "text/plain")
	assert.Error(t, err)
}
