package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// ErrorCode is the machine-readable error code of an API error.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodeProviderNotFound  ErrorCode = "provider_not_found"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeQuotaExceeded     ErrorCode = "quota_exceeded"
	CodeProviderError     ErrorCode = "provider_error"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// sentinelHandlers maps domain sentinels to HTTP replies. First match wins.
var sentinelHandlers = []errorHandler{
	sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
	sentinelHandler(domain.ErrProviderNotFound, http.StatusNotFound, CodeProviderNotFound),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeDocumentNotFound),
	sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, CodeUnsupportedFormat),
	sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	sentinelHandler(domain.ErrAuthentication, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrProviderTimeout, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrProviderUnconfigured, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrNoProviders, http.StatusBadGateway, CodeProviderError),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Validation errors keep their full message; the rest expose only the sentinel text.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if status == http.StatusBadRequest || status == http.StatusNotFound {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
