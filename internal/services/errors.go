package services

import "errors"

// Service-level error taxonomy. Handlers map these onto HTTP statuses;
// wrapping with %w keeps errors.Is dispatch working across layers.
var (
	// ErrValidation: bad input shape or characters. The client must fix
	// and resubmit; retrying unchanged cannot succeed.
	ErrValidation = errors.New("validation failed")

	ErrCaseNotFound     = errors.New("case not found")
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrTokenNotFound    = errors.New("capability token not found")

	// Conflicts are terminal, not retryable.
	ErrAlreadyFinalized  = errors.New("evidence already finalized")
	ErrDuplicateEvidence = errors.New("identical content already recorded in this case")
	ErrAlreadyRevoked    = errors.New("capability token already revoked")

	// Token resolution failures. All four deny access but are reported
	// distinctly so audit and observability can tell them apart.
	ErrInvalidToken       = errors.New("unknown capability token")
	ErrTokenRevoked       = errors.New("capability token revoked")
	ErrTokenExpired       = errors.New("capability token expired")
	ErrAccessLimitReached = errors.New("capability token access limit reached")

	ErrInvalidScope  = errors.New("invalid token scope")
	ErrInvalidRole   = errors.New("invalid recipient role")
	ErrInvalidExpiry = errors.New("token expiry must be between 1 and 90 days")

	// ErrExternalIO: the blob store or queue was unreachable. Safe to
	// retry with backoff.
	ErrExternalIO = errors.New("external store unavailable")
)
