package service

import "errors"

// ErrHistoryDisabled is returned when history lookups run without a database.
var ErrHistoryDisabled = errors.New("receipt history is disabled")

// UpstreamError covers every failure of the completion call: network errors,
// non-2xx responses, empty choices and a missing credential. Detail carries
// the upstream response body when one was received.
type UpstreamError struct {
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return "completion request failed: " + e.Detail
	}
	if e.Err != nil {
		return "completion request failed: " + e.Err.Error()
	}
	return "completion request failed"
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Details returns the most specific description available for the envelope.
func (e *UpstreamError) Details() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// ParseError means the completion returned content that is not valid JSON.
// RawContent preserves the unparsed payload for diagnosability.
type ParseError struct {
	RawContent string
	Err        error
}

func (e *ParseError) Error() string {
	return "failed to parse completion content: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ImageError means the uploaded image could not be decoded or resized.
type ImageError struct {
	Err error
}

func (e *ImageError) Error() string {
	return "image processing failed: " + e.Err.Error()
}

func (e *ImageError) Unwrap() error { return e.Err }

// PDFError means text extraction from the uploaded PDF failed.
type PDFError struct {
	Err error
}

func (e *PDFError) Error() string {
	return "PDF extraction failed: " + e.Err.Error()
}

func (e *PDFError) Unwrap() error { return e.Err }
