package awsutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// Provider error codes the tool branches on.
const (
	AuthFailure                  = "AuthFailure"
	UnauthorizedOperation        = "UnauthorizedOperation"
	DryRunOperation              = "DryRunOperation"
	InsufficientInstanceCapacity = "InsufficientInstanceCapacity"
	InvalidParameterValue        = "InvalidParameterValue"
	RequestLimitExceeded         = "RequestLimitExceeded"
	Throttling                   = "Throttling"
)

// AWSErrorCode extracts the provider error code from err, or "Unknown" when
// err carries none.
func AWSErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return "Unknown"
}

// IsErrorCode reports whether err carries the given provider code.
func IsErrorCode(err error, code string) bool {
	return AWSErrorCode(err) == code
}

// IsPermissionsError returns true on aws permission errors.
func IsPermissionsError(err error) bool {
	code := AWSErrorCode(err)
	return code == AuthFailure || code == UnauthorizedOperation
}

// IsThrottleError returns true when the provider asked us to back off.
func IsThrottleError(err error) bool {
	code := AWSErrorCode(err)
	return code == RequestLimitExceeded || code == Throttling
}

// IsIdentityPropagationError recognises the transient window between
// creating an instance profile and it becoming usable in RunInstances.
func IsIdentityPropagationError(err error) bool {
	if err == nil {
		return false
	}
	if AWSErrorCode(err) == InvalidParameterValue &&
		strings.Contains(err.Error(), "Invalid IAM Instance Profile") {
		return true
	}
	return strings.Contains(err.Error(), "iamInstanceProfile.name is invalid")
}

// ProviderError wraps a provider API failure with the operation attempted
// and the provider's error code, so callers can branch without re-parsing.
type ProviderError struct {
	// Op names the operation that failed, e.g. "create security group".
	Op string
	// Code is the provider error code, or "Unknown".
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("cannot %s (%s): %v", e.Op, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapProvider converts a raw SDK error into a *ProviderError. A nil err
// passes through.
func WrapProvider(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Op: op, Code: AWSErrorCode(err), Err: err}
}

// AsProviderError unwraps err to a *ProviderError if one is present.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
