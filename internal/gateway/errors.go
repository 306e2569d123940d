package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode classifies gateway-side failures. Callers treat every code as a
// definite negative; there is no automatic retry.
type ErrorCode string

const (
	CodeAuth           ErrorCode = "auth"
	CodeRateLimited    ErrorCode = "rate_limited"
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeUnavailable    ErrorCode = "unavailable"
)

// GatewayError is the adapter's own error taxonomy. Raw transport errors are
// always wrapped into one of these before leaving the package.
type GatewayError struct {
	Code    ErrorCode
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Code, e.Message)
}

// AsGatewayError unwraps err into a *GatewayError when possible.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

var (
	// ErrInvalidSignature means the webhook payload failed authentication.
	// The caller must respond with a client error and touch no state.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrMalformedPayload means the webhook body could not be parsed after
	// its signature verified, or required envelope fields were missing.
	ErrMalformedPayload = errors.New("webhook payload is malformed")
)
