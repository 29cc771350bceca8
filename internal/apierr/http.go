package apierr

import "fmt"

// FromStatus classifies a non-2xx HTTP response.
//   - 401/403 are credential failures
//   - 408 and 429 are worth retrying
//   - remaining 4xx are validation rejections
//   - 5xx and anything unexpected are transport failures
func FromStatus(op string, statusCode int, body string) *Error {
	return &Error{
		Kind:       kindForStatus(statusCode),
		StatusCode: statusCode,
		Op:         op,
		Body:       body,
		Err:        fmt.Errorf("%s failed: HTTP %d", op, statusCode),
	}
}

func kindForStatus(statusCode int) Kind {
	switch {
	case statusCode == 401 || statusCode == 403:
		return Auth
	case statusCode == 408 || statusCode == 429:
		return Transport
	case statusCode >= 400 && statusCode < 500:
		return Validation
	default:
		return Transport
	}
}

// FromTransport classifies a network-level failure. These are always
// retryable since they may be transient.
func FromTransport(op string, err error) *Error {
	return &Error{
		Kind: Transport,
		Op:   op,
		Err:  fmt.Errorf("%s network error: %w", op, err),
	}
}

// FromDecode classifies a malformed response body or stream frame.
func FromDecode(op string, err error) *Error {
	return &Error{
		Kind: Protocol,
		Op:   op,
		Err:  fmt.Errorf("%s decode error: %w", op, err),
	}
}
