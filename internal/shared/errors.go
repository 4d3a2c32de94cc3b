package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authorization errors
	//
	// ErrReauthRequired means the stored refresh token was rejected by the
	// provider and the user must go through the authorization flow again.
	// ErrCsrfMismatch means the callback state did not correspond to a live,
	// unconsumed authorization attempt.
	ErrNotAuthorized  = fmt.Errorf("not authorized")
	ErrReauthRequired = fmt.Errorf("reauthorization required")
	ErrCsrfMismatch   = fmt.Errorf("state mismatch")
	ErrNotConnected   = fmt.Errorf("no connection for user")

	// Upstream call errors
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrNotFound      = fmt.Errorf("not found")
	ErrQuotaExceeded = fmt.Errorf("provider quota exceeded")
	ErrStaleData     = fmt.Errorf("upstream fetch failed, cached data is stale")
	ErrRateLimited   = fmt.Errorf("rate limit exceeded")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
