package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

// StatusError maps an HTTP status from a provider API onto the provider sentinels.
func StatusError(provider string, status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewProviderError(provider, status, domain.ErrAuthentication, message)
	case status == http.StatusTooManyRequests:
		return domain.NewProviderError(provider, status, domain.ErrRateLimited, message)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.NewProviderError(provider, status, domain.ErrProviderTimeout, message)
	default:
		return domain.NewProviderError(provider, status, domain.ErrProviderError, message)
	}
}

// TransportError classifies an error that carries no HTTP status (network failure,
// deadline, malformed response). Provider errors pass through unchanged.
func TransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Provider: provider, Message: err.Error(), Err: domain.ErrProviderTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.ProviderError{Provider: provider, Message: err.Error(), Err: domain.ErrProviderTimeout}
	}
	return &domain.ProviderError{Provider: provider, Message: err.Error(), Err: domain.ErrProviderError}
}

// Retryable reports whether another attempt may succeed: 5xx, 429, timeouts and
// network errors are retryable, any other 4xx is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrAuthentication) || errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrProviderUnconfigured) || errors.Is(err, domain.ErrQuotaExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrProviderTimeout) {
		return true
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 {
		return false
	}
	return true
}
