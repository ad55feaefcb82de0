package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnsupportedFormat signals a file type the extractor cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrProviderNotFound signals a provider name that was never registered.
	ErrProviderNotFound = errors.New("provider not registered")
	// ErrProviderUnconfigured signals missing provider settings (API key, base URL).
	ErrProviderUnconfigured = errors.New("provider not configured")
	// ErrNoProviders signals an empty provider registry.
	ErrNoProviders = errors.New("no providers registered")
	// ErrAuthentication signals a rejected API key (401/403). Retrying is useless.
	ErrAuthentication = errors.New("provider authentication failed")
	// ErrRateLimited signals a 429 from a provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrProviderTimeout signals an attempt that ran out of time.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderError signals any other provider failure.
	ErrProviderError = errors.New("provider error")
	// ErrQuotaExceeded signals an exhausted token budget.
	ErrQuotaExceeded = errors.New("token quota exceeded")
	// ErrEmbeddingProviderError signals an embedding backend failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ProviderError carries provider context around one of the provider sentinels.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Err.Error(), e.StatusCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a ProviderError. kind should be one of the provider sentinels.
func NewProviderError(provider string, statusCode int, kind error, message string) error {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Message: message, Err: kind}
}
