package ai

import "github.com/kiranshivaraju/finsight/internal/ai/httpapi"

// Provider failure sentinels. Providers return errors wrapping one of these.
var (
	ErrProviderUnavailable = httpapi.ErrProviderUnavailable
	ErrInferenceTimeout    = httpapi.ErrInferenceTimeout
	ErrInvalidResponse     = httpapi.ErrInvalidResponse
)
