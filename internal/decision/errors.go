// internal/decision/errors.go
package decision

import "errors"

// Sentinel errors the agent loop branches on. Providers wrap these with %w so
// callers can use errors.Is regardless of the underlying cause.
var (
	// ErrProviderUnavailable indicates the provider could not reach its
	// backing service (network, auth, quota). The loop substitutes the
	// fallback provider when it sees this.
	ErrProviderUnavailable = errors.New("decision provider unavailable")

	// ErrUnparseableResponse indicates the provider got a response but could
	// not extract a valid action from it.
	ErrUnparseableResponse = errors.New("unparseable decision response")
)
