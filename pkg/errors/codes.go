package errors

import "net/http"

// Code is the stable, client-facing error identifier.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidSignature  Code = "INVALID_SIGNATURE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeConflict          Code = "CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
	CodeUpstream          Code = "UPSTREAM_ERROR"
)

// Metadata describes how a code is rendered to API clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	opaque    = false
	detailed  = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {http.StatusBadRequest, final, "validation failed", detailed},
	CodeInvalidSignature:  {http.StatusBadRequest, final, "invalid signature", opaque},
	CodeUnauthorized:      {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:         {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:          {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:          {http.StatusConflict, retryable, "conflict detected", opaque},
	CodeInvalidTransition: {http.StatusConflict, final, "state transition disallowed", detailed},
	CodeIdempotency:       {http.StatusUnprocessableEntity, final, "idempotency key reused", detailed},
	CodeRateLimit:         {http.StatusTooManyRequests, final, "rate limit exceeded", opaque},
	CodeInternal:          {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:        {http.StatusInternalServerError, retryable, "dependency unavailable", opaque},
	CodeUpstream:          {http.StatusBadGateway, retryable, "payment provider unavailable", opaque},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Status is shorthand for MetadataFor(c).HTTPStatus.
func (c Code) Status() int {
	return MetadataFor(c).HTTPStatus
}
