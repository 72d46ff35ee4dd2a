// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, not_found) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., analysis_failed, upstream_rate_limited) are reserved
//     for business logic errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeAnalysisFailed     = "analysis_failed"
	ErrCodeGenerationFailed   = "generation_failed"
	ErrCodeChatFailed         = "chat_failed"
	ErrCodeUploadFailed       = "upload_failed"
	ErrCodeExportFailed       = "export_failed"
	ErrCodeImportFailed       = "import_failed"
	ErrCodeUpstreamRateLimit  = "upstream_rate_limited"
	ErrCodeUpstreamAuthFailed = "upstream_auth_failed"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)
