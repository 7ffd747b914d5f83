package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"receiptlens/internal/dto"
	"receiptlens/internal/models"
	"receiptlens/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReceiptService orchestrates the extraction pipeline:
// upload -> (PDF text | image normalize) -> completion -> JSON parse.
type ReceiptService struct {
	pdf     *PDFService
	image   *ImageNormalizer
	llm     *LLMService
	usage   *UsageTracker
	history *repository.ReceiptRepository // nil when history is disabled
	logger  *zap.Logger
}

func NewReceiptService(
	pdf *PDFService,
	image *ImageNormalizer,
	llm *LLMService,
	usage *UsageTracker,
	history *repository.ReceiptRepository,
	logger *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		pdf:     pdf,
		image:   image,
		llm:     llm,
		usage:   usage,
		history: history,
		logger:  logger,
	}
}

// ProcessPDF runs the pipeline for an uploaded PDF and returns the extracted
// receipt data as parsed by the completion service.
func (s *ReceiptService) ProcessPDF(ctx context.Context, filePath, fileName string, fileSize int64) (any, error) {
	s.usage.RecordRequest()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &PDFError{Err: fmt.Errorf("failed to read upload: %w", err)}
	}

	text, err := s.pdf.ExtractText(data)
	if err != nil {
		return nil, err
	}

	result, err := s.llm.ExtractFromText(ctx, text)
	if err != nil {
		return nil, err
	}
	s.usage.RecordCompletion(result.TotalTokens)

	extracted, cleaned, err := parseReceiptContent(result.Content)
	if err != nil {
		return nil, err
	}

	s.saveHistory(ctx, models.SourcePDF, fileName, fileSize, cleaned, result.TotalTokens)
	return extracted, nil
}

// ProcessImage runs the pipeline for an uploaded image.
func (s *ReceiptService) ProcessImage(ctx context.Context, filePath, fileName, contentType string, fileSize int64) (any, error) {
	s.usage.RecordRequest()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ImageError{Err: fmt.Errorf("failed to read upload: %w", err)}
	}

	normalized, mimeType, err := s.image.Normalize(data, contentType)
	if err != nil {
		return nil, err
	}

	result, err := s.llm.ExtractFromImage(ctx, normalized, mimeType)
	if err != nil {
		return nil, err
	}
	s.usage.RecordCompletion(result.TotalTokens)

	extracted, cleaned, err := parseReceiptContent(result.Content)
	if err != nil {
		return nil, err
	}

	s.saveHistory(ctx, models.SourceImage, fileName, fileSize, cleaned, result.TotalTokens)
	return extracted, nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// clampLimit keeps history queries within a sane page size. Negative values
// would otherwise wrap through the unsigned SQL LIMIT.
func clampLimit(limit int) int {
	switch {
	case limit < 1:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

// ListReceipts returns recent stored extractions, newest first.
func (s *ReceiptService) ListReceipts(ctx context.Context, limit int) ([]*dto.ReceiptResponse, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}

	receipts, err := s.history.List(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ReceiptResponse, len(receipts))
	for i, rec := range receipts {
		var extracted any
		if err := json.Unmarshal(rec.Data, &extracted); err != nil {
			s.logger.Warn("Stored receipt data is not valid JSON",
				zap.String("receipt_id", rec.ID.String()),
				zap.Error(err),
			)
		}
		responses[i] = &dto.ReceiptResponse{
			ID:            rec.ID.String(),
			SourceType:    string(rec.SourceType),
			FileName:      rec.FileName,
			FileSize:      rec.FileSize,
			ExtractedData: extracted,
			TokensUsed:    rec.TokensUsed,
			CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		}
	}

	return responses, nil
}

// parseReceiptContent parses completion output as JSON. Markdown code fences
// are stripped first since models wrap output despite instructions. The parsed
// structure is returned verbatim; the shape is not validated.
func parseReceiptContent(content string) (any, string, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var extracted any
	if err := json.Unmarshal([]byte(cleaned), &extracted); err != nil {
		return nil, "", &ParseError{RawContent: content, Err: err}
	}
	return extracted, cleaned, nil
}

// saveHistory stores a successful extraction when history is enabled. Storage
// failures are logged, never surfaced to the caller.
func (s *ReceiptService) saveHistory(ctx context.Context, source models.SourceType, fileName string, fileSize int64, extractedJSON string, tokens int) {
	if s.history == nil {
		return
	}

	rec := &models.Receipt{
		ID:         uuid.New(),
		SourceType: source,
		FileName:   sanitizeUTF8(fileName),
		FileSize:   fileSize,
		Data:       []byte(sanitizeUTF8(extractedJSON)),
		TokensUsed: tokens,
		CreatedAt:  time.Now(),
	}

	if err := s.history.Create(ctx, rec); err != nil {
		s.logger.Warn("Failed to save receipt history",
			zap.String("file_name", fileName),
			zap.Error(err),
		)
	}
}
