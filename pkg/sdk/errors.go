package archiquery

import "github.com/Khogao/archi-query-master-sub000/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput         = domain.ErrInvalidInput
	ErrUnsupportedFormat    = domain.ErrUnsupportedFormat
	ErrProviderNotFound     = domain.ErrProviderNotFound
	ErrNoProviders          = domain.ErrNoProviders
	ErrQuotaExceeded        = domain.ErrQuotaExceeded
	ErrRateLimited          = domain.ErrRateLimited
	ErrProviderUnconfigured = domain.ErrProviderUnconfigured
)
