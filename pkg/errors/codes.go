package errors

import "net/http"

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	// CodeInvalidTransition rejects a status change the order state machine does not allow.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	// CodeAssignmentConflict reports a lost compare-and-set on driver availability.
	CodeAssignmentConflict Code = "ASSIGNMENT_CONFLICT"
)

// Metadata describes how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// ShowMessage lets the error's own message replace PublicMessage in responses.
	ShowMessage    bool
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {http.StatusBadRequest, false, "validation failed", true, true},
	CodeUnauthorized:       {http.StatusUnauthorized, false, "authentication required", true, false},
	CodeForbidden:          {http.StatusForbidden, false, "access denied", true, false},
	CodeNotFound:           {http.StatusNotFound, false, "resource not found", true, false},
	CodeConflict:           {http.StatusConflict, false, "conflict detected", true, false},
	CodeInvalidTransition:  {http.StatusUnprocessableEntity, false, "order status transition not allowed", true, true},
	CodeAssignmentConflict: {http.StatusConflict, true, "driver is no longer available", true, true},
	CodeIdempotency:        {http.StatusConflict, false, "idempotency key reused", true, false},
	CodeRateLimit:          {http.StatusTooManyRequests, false, "rate limit exceeded", true, false},
	CodeInternal:           {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:         {http.StatusServiceUnavailable, true, "dependency unavailable", false, true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}
