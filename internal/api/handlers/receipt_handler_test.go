package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"receiptlens/internal/service"
	"receiptlens/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestApp wires the full pipeline against a stubbed completions endpoint
// and returns the app plus the transient upload directory. When captured is
// non-nil the stub decodes the completion request body into it.
func newTestApp(t *testing.T, llmStatus int, llmContent string, captured *map[string]any) (*fiber.App, string) {
	t.Helper()

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		if llmStatus != http.StatusOK {
			w.WriteHeader(llmStatus)
			w.Write([]byte(`{"error":{"message":"upstream unavailable"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": llmContent}},
			},
			"usage": map[string]any{"total_tokens": 42},
		})
	}))
	t.Cleanup(stub.Close)

	logger := zap.NewNop()
	llm := service.NewLLMService(&config.OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: stub.URL,
		Timeout: 5 * time.Second,
	}, logger)
	usage := service.NewUsageTracker(0.002, prometheus.NewRegistry(), logger)
	svc := service.NewReceiptService(
		service.NewPDFService(logger),
		service.NewImageNormalizer(15<<20, logger),
		llm,
		usage,
		nil,
		logger,
	)

	uploadDir := t.TempDir()
	handler := NewReceiptHandler(svc, uploadDir, 20<<20, logger)

	app := fiber.New()
	app.Post("/upload-pdf", handler.UploadPDF)
	app.Post("/upload-image", handler.UploadImage)
	app.Get("/receipts", handler.ListReceipts)
	return app, uploadDir
}

func multipartUpload(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// textPDF assembles a one-page PDF with the given text drawn in Helvetica,
// computing the xref offsets as it goes.
func textPDF(t *testing.T, text string) []byte {
	t.Helper()

	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)
	return buf.Bytes()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "uploaded file must not survive the request")
}

func TestUploadWithoutFile(t *testing.T) {
	app, _ := newTestApp(t, http.StatusOK, "{}", nil)

	for _, target := range []string{"/upload-pdf", "/upload-image"} {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		payload := decodeBody(t, resp)
		assert.Equal(t, "No file uploaded", payload["error"])
	}
}

func TestUploadImageSuccess(t *testing.T) {
	content := `{"items":[{"name":"Milk","price":3.99},{"name":"Bread","price":2.50}],"tax":0.50,"total":6.99}`
	app, uploadDir := newTestApp(t, http.StatusOK, content, nil)

	req := multipartUpload(t, "/upload-image", "image", "receipt.png", tinyPNG(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, true, payload["success"])

	extracted := payload["extractedData"].(map[string]any)
	assert.Equal(t, 6.99, extracted["total"])
	assert.Equal(t, 0.50, extracted["tax"])
	assert.Len(t, extracted["items"], 2)

	requireEmptyDir(t, uploadDir)
}

func TestUploadImageParseFailure(t *testing.T) {
	app, uploadDir := newTestApp(t, http.StatusOK, "not json", nil)

	req := multipartUpload(t, "/upload-image", "image", "receipt.png", tinyPNG(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, "parsing failed", payload["error"])
	assert.Equal(t, "not json", payload["rawContent"])

	requireEmptyDir(t, uploadDir)
}

func TestUploadImageUpstreamFailure(t *testing.T) {
	app, uploadDir := newTestApp(t, http.StatusBadGateway, "", nil)

	req := multipartUpload(t, "/upload-image", "image", "receipt.png", tinyPNG(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, "OpenAI API failed", payload["error"])
	assert.Contains(t, payload["details"], "status 502")

	requireEmptyDir(t, uploadDir)
}

func TestUploadPDFSuccess(t *testing.T) {
	content := `{"items":[{"name":"Milk","price":3.99},{"name":"Bread","price":2.50}],"tax":0.50,"total":6.99}`
	var captured map[string]any
	app, uploadDir := newTestApp(t, http.StatusOK, content, &captured)

	pdf := textPDF(t, "Milk $3.99, Bread $2.50, Tax $0.50, Total $6.99")
	req := multipartUpload(t, "/upload-pdf", "pdf", "receipt.pdf", pdf)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, true, payload["success"])

	extracted := payload["extractedData"].(map[string]any)
	assert.Equal(t, 6.99, extracted["total"])
	assert.Equal(t, 0.50, extracted["tax"])
	assert.Len(t, extracted["items"], 2)

	// The completion request carries the text pulled out of the PDF.
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Contains(t, user["content"], "Milk $3.99")

	requireEmptyDir(t, uploadDir)
}

func TestUploadPDFExtractionFailure(t *testing.T) {
	app, uploadDir := newTestApp(t, http.StatusOK, "{}", nil)

	req := multipartUpload(t, "/upload-pdf", "pdf", "receipt.pdf", []byte("this is not a pdf"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, "PDF extraction failed", payload["error"])

	requireEmptyDir(t, uploadDir)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	// Cap shrunk below the payload size so the pipeline is never reached.
	logger := zap.NewNop()
	usage := service.NewUsageTracker(0.002, prometheus.NewRegistry(), logger)
	svc := service.NewReceiptService(
		service.NewPDFService(logger),
		service.NewImageNormalizer(15<<20, logger),
		nil,
		usage,
		nil,
		logger,
	)
	uploadDir := t.TempDir()
	handler := NewReceiptHandler(svc, uploadDir, 16, logger)

	app := fiber.New()
	app.Post("/upload-image", handler.UploadImage)

	req := multipartUpload(t, "/upload-image", "image", "receipt.png", tinyPNG(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, "File too large", payload["error"])

	requireEmptyDir(t, uploadDir)
}

func TestUploadStoreFailureLeavesNothingBehind(t *testing.T) {
	// Pointing the upload dir at a regular file makes SaveFile fail.
	logger := zap.NewNop()
	usage := service.NewUsageTracker(0.002, prometheus.NewRegistry(), logger)
	svc := service.NewReceiptService(
		service.NewPDFService(logger),
		service.NewImageNormalizer(15<<20, logger),
		nil,
		usage,
		nil,
		logger,
	)
	uploadDir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(uploadDir, []byte("occupied"), 0644))
	handler := NewReceiptHandler(svc, uploadDir, 20<<20, logger)

	app := fiber.New()
	app.Post("/upload-image", handler.UploadImage)

	req := multipartUpload(t, "/upload-image", "image", "receipt.png", tinyPNG(t))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, "Failed to store upload", payload["error"])
}

func TestListReceiptsWhenHistoryDisabled(t *testing.T) {
	app, _ := newTestApp(t, http.StatusOK, "{}", nil)

	req := httptest.NewRequest(http.MethodGet, "/receipts", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	payload := decodeBody(t, resp)
	assert.Equal(t, "Receipt history is disabled", payload["error"])
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		filename string
		want     string
	}{
		{"declared type wins", "image/webp", "receipt.png", "image/webp"},
		{"octet-stream falls back to extension", "application/octet-stream", "receipt.png", "image/png"},
		{"unknown extension defaults to jpeg", "", "receipt.bin", "image/jpeg"},
		{"gif extension", "", "receipt.GIF", "image/gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := &multipart.FileHeader{
				Filename: tt.filename,
				Header:   textproto.MIMEHeader{},
			}
			if tt.header != "" {
				file.Header.Set("Content-Type", tt.header)
			}
			assert.Equal(t, tt.want, detectContentType(file))
		})
	}
}
