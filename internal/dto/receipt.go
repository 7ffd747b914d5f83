package dto

// ExtractionResponse is the success envelope for both upload routes.
type ExtractionResponse struct {
	Success       bool `json:"success"`
	ExtractedData any  `json:"extractedData"`
}

// ErrorResponse is the failure envelope. RawContent carries the unparsed
// completion payload when JSON parsing failed.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	RawContent string `json:"rawContent,omitempty"`
}

// ReceiptResponse is one stored extraction in the history listing.
type ReceiptResponse struct {
	ID            string `json:"id"`
	SourceType    string `json:"source_type"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	ExtractedData any    `json:"extractedData"`
	TokensUsed    int    `json:"tokens_used"`
	CreatedAt     string `json:"created_at"`
}
