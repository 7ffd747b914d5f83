package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"receiptlens/pkg/config"

	"go.uber.org/zap"
)

// receiptSystemPrompt fixes the output contract for every extraction request.
const receiptSystemPrompt = `You are a receipt parsing assistant. Extract the line items, tax and total from the receipt the user provides. Respond with pure JSON only, no markdown formatting and no commentary, exactly matching this schema:
{"items":[{"name":"item name","price":0.00}],"tax":0.00,"total":0.00}`

// LLMService builds extraction requests and sends them to the OpenAI
// chat-completions endpoint. Sampling is pinned to temperature 0.
type LLMService struct {
	cfg        *config.OpenAIConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLLMService(cfg *config.OpenAIConfig, logger *zap.Logger) *LLMService {
	return &LLMService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// CompletionResult carries the raw model output and the reported token usage.
type CompletionResult struct {
	Content     string
	TotalTokens int
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// ExtractFromText requests structured extraction for plain receipt text.
func (s *LLMService) ExtractFromText(ctx context.Context, text string) (*CompletionResult, error) {
	return s.complete(ctx, s.buildRequest(chatMessage{Role: "user", Content: text}))
}

// ExtractFromImage requests structured extraction for a normalized image,
// inlined as a base64 data URI.
func (s *LLMService) ExtractFromImage(ctx context.Context, data []byte, mimeType string) (*CompletionResult, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	msg := chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
		},
	}
	return s.complete(ctx, s.buildRequest(msg))
}

func (s *LLMService) buildRequest(user chatMessage) *chatRequest {
	return &chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: receiptSystemPrompt},
			user,
		},
		Temperature: 0,
	}
}

func (s *LLMService) complete(ctx context.Context, reqBody *chatRequest) (*CompletionResult, error) {
	if s.cfg.APIKey == "" {
		return nil, &UpstreamError{Detail: "OPENAI_API_KEY is not configured"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, string(bodyBytes))}
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &UpstreamError{Detail: "no choices in completion response"}
	}

	s.logger.Info("Completion received",
		zap.String("model", s.cfg.Model),
		zap.Int("total_tokens", chatResp.Usage.TotalTokens),
	)

	return &CompletionResult{
		Content:     chatResp.Choices[0].Message.Content,
		TotalTokens: chatResp.Usage.TotalTokens,
	}, nil
}
