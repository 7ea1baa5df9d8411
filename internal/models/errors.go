package models

import "errors"

// Domain errors
var (
	// Provider errors
	ErrEmbeddingUnavailable  = errors.New("embedding provider unavailable")
	ErrCompletionUnavailable = errors.New("completion provider unavailable")
	ErrCompletionRejected    = errors.New("completion rejected by content policy")

	// Index errors
	ErrIndexVersionMismatch = errors.New("index snapshot model/version mismatch")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")

	// Engine errors
	ErrUploadNotAllowed = errors.New("caller is not allowed to ingest documents")
	ErrUnsupportedFile  = errors.New("unsupported file format")
)
