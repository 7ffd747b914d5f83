package handlers

import (
	"errors"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"receiptlens/internal/dto"
	"receiptlens/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	svc       *service.ReceiptService
	uploadDir string
	maxBytes  int64
	logger    *zap.Logger
}

func NewReceiptHandler(svc *service.ReceiptService, uploadDir string, maxBytes int64, logger *zap.Logger) *ReceiptHandler {
	// Create upload directory if it doesn't exist
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		logger.Warn("Failed to create upload directory", zap.Error(err))
	}

	return &ReceiptHandler{
		svc:       svc,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// UploadPDF godoc
// @Summary Extract receipt data from a PDF
// @Description Upload a receipt PDF and get back structured items, tax and total
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param pdf formData file true "Receipt PDF (max 20 MB)"
// @Success 200 {object} dto.ExtractionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /upload-pdf [post]
func (h *ReceiptHandler) UploadPDF(c *fiber.Ctx) error {
	file, err := c.FormFile("pdf")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}
	return h.process(c, file, true)
}

// UploadImage godoc
// @Summary Extract receipt data from an image
// @Description Upload a receipt photo or scan and get back structured items, tax and total
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Receipt image (max 20 MB)"
// @Success 200 {object} dto.ExtractionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /upload-image [post]
func (h *ReceiptHandler) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}
	return h.process(c, file, false)
}

// ListReceipts godoc
// @Summary List stored extractions
// @Description Returns recent extraction results when history is enabled
// @Tags receipts
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Success 200 {array} dto.ReceiptResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /receipts [get]
func (h *ReceiptHandler) ListReceipts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	receipts, err := h.svc.ListReceipts(c.Context(), limit)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Receipt history is disabled",
			})
		}
		h.logger.Error("Failed to list receipts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list receipts",
		})
	}

	return c.JSON(receipts)
}

// process stores the upload transiently, runs the pipeline and guarantees the
// stored file is removed before the response is sent, on every exit path.
func (h *ReceiptHandler) process(c *fiber.Ctx, file *multipart.FileHeader, isPDF bool) error {
	if file.Size > h.maxBytes {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "File too large",
			Details: "uploads are limited to 20 MB",
		})
	}

	filePath := filepath.Join(h.uploadDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveFile(file, filePath); err != nil {
		h.logger.Error("Failed to store upload", zap.Error(err))
		// SaveFile can fail after a partial write.
		h.removeUpload(filePath)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Failed to store upload",
		})
	}
	defer h.removeUpload(filePath)

	var extracted any
	var err error
	if isPDF {
		extracted, err = h.svc.ProcessPDF(c.Context(), filePath, file.Filename, file.Size)
	} else {
		extracted, err = h.svc.ProcessImage(c.Context(), filePath, file.Filename, detectContentType(file), file.Size)
	}
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(dto.ExtractionResponse{
		Success:       true,
		ExtractedData: extracted,
	})
}

// removeUpload is idempotent: a file already gone is not an error, and
// deletion failures are logged, never propagated.
func (h *ReceiptHandler) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.logger.Warn("Failed to remove uploaded file",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (h *ReceiptHandler) renderError(c *fiber.Ctx, err error) error {
	var parseErr *service.ParseError
	var upstreamErr *service.UpstreamError
	var imageErr *service.ImageError
	var pdfErr *service.PDFError

	switch {
	case errors.As(err, &parseErr):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:      "parsing failed",
			Details:    parseErr.Err.Error(),
			RawContent: parseErr.RawContent,
		})
	case errors.As(err, &upstreamErr):
		h.logger.Error("Completion call failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:   "OpenAI API failed",
			Details: upstreamErr.Details(),
		})
	case errors.As(err, &imageErr):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "image processing failed",
			Details: imageErr.Err.Error(),
		})
	case errors.As(err, &pdfErr):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:   "PDF extraction failed",
			Details: pdfErr.Err.Error(),
		})
	default:
		h.logger.Error("Extraction pipeline failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Internal server error",
		})
	}
}

// detectContentType prefers the declared multipart content type, falling back
// to the file extension.
func detectContentType(file *multipart.FileHeader) string {
	if ct := file.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(file.Filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
