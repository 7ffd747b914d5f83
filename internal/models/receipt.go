package models

import (
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourcePDF   SourceType = "pdf"
	SourceImage SourceType = "image"
)

// ReceiptItem is a single purchased line item.
type ReceiptItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ReceiptRecord is the output schema the completion service is instructed to
// produce. The pipeline only validates that responses are parseable JSON; the
// shape itself is a contract with the upstream model, not enforced locally.
type ReceiptRecord struct {
	Items []ReceiptItem `json:"items"`
	Tax   float64       `json:"tax"`
	Total float64       `json:"total"`
}

// Receipt is a stored extraction result.
type Receipt struct {
	ID         uuid.UUID  `db:"id"`
	SourceType SourceType `db:"source_type"`
	FileName   string     `db:"file_name"`
	FileSize   int64      `db:"file_size"`
	Data       []byte     `db:"data"` // extracted JSON as returned by the model
	TokensUsed int        `db:"tokens_used"`
	CreatedAt  time.Time  `db:"created_at"`
}
