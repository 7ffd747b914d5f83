package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"receiptlens/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleCompletion = `{"items":[{"name":"Milk","price":3.99}],"tax":0.50,"total":6.99}`

func completionsStub(t *testing.T, captured *map[string]any, status int, content string, totalTokens int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
			return
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{"total_tokens": totalTokens},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestLLMService(baseURL string) *LLMService {
	return NewLLMService(&config.OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestExtractFromTextBuildsDeterministicRequest(t *testing.T) {
	var captured map[string]any
	srv := completionsStub(t, &captured, http.StatusOK, sampleCompletion, 123)
	defer srv.Close()

	svc := newTestLLMService(srv.URL)
	result, err := svc.ExtractFromText(context.Background(), "Milk $3.99, Tax $0.50, Total $6.99")
	require.NoError(t, err)

	assert.Equal(t, sampleCompletion, result.Content)
	assert.Equal(t, 123, result.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, float64(0), captured["temperature"])

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)

	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "pure JSON")

	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "Milk $3.99, Tax $0.50, Total $6.99", user["content"])
}

func TestExtractFromImageInlinesDataURI(t *testing.T) {
	var captured map[string]any
	srv := completionsStub(t, &captured, http.StatusOK, sampleCompletion, 456)
	defer srv.Close()

	svc := newTestLLMService(srv.URL)
	_, err := svc.ExtractFromImage(context.Background(), []byte{0x01, 0x02, 0x03}, "image/png")
	require.NoError(t, err)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)

	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 1)

	part := parts[0].(map[string]any)
	assert.Equal(t, "image_url", part["type"])
	url := part["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"), "got %q", url)
}

func TestCompleteSurfacesUpstreamFailure(t *testing.T) {
	srv := completionsStub(t, nil, http.StatusInternalServerError, "", 0)
	defer srv.Close()

	svc := newTestLLMService(srv.URL)
	_, err := svc.ExtractFromText(context.Background(), "anything")

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Contains(t, upstreamErr.Details(), "status 500")
	assert.Contains(t, upstreamErr.Details(), "quota exceeded")
}

func TestCompleteRequiresCredential(t *testing.T) {
	svc := NewLLMService(&config.OpenAIConfig{
		Model:   "gpt-4o-mini",
		BaseURL: "http://127.0.0.1:0",
		Timeout: time.Second,
	}, zap.NewNop())

	_, err := svc.ExtractFromText(context.Background(), "anything")

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Contains(t, upstreamErr.Details(), "OPENAI_API_KEY")
}
