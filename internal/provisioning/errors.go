package provisioning

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// The helpers below classify remote failures for reporting. They never
// change control flow: every failure aborts the run.

// ErrorCode returns the resource-manager error code carried by err, if any.
func ErrorCode(err error) string {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.ErrorCode
	}
	return ""
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// IsNotFound reports a missing resource group, subnet, image or machine.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict reports a naming conflict or an incompatible resource state.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsThrottled reports a rate-limited request.
func IsThrottled(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

// IsQuotaExceeded reports a subscription or regional quota failure.
func IsQuotaExceeded(err error) bool {
	code := ErrorCode(err)
	return strings.Contains(code, "QuotaExceeded") || code == "OperationNotAllowed"
}

// Classify returns a short failure category for logs and run records.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotProvisioned), errors.Is(err, ErrInvalidInput):
		return "validation"
	case IsNotFound(err):
		return "not-found"
	case IsQuotaExceeded(err):
		return "quota"
	case IsConflict(err):
		return "conflict"
	case IsThrottled(err):
		return "throttled"
	case StatusCode(err) == http.StatusBadRequest:
		return "validation"
	case StatusCode(err) != 0:
		return "remote"
	default:
		return "unknown"
	}
}
