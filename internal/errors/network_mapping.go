package errors

import "strings"

// MapNetworkError maps a transport-level error to a stable error code for
// account error tracking. Unrecognized errors classify as transient.
func MapNetworkError(err error) *VerifyError {
	if err == nil {
		return nil
	}
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return NewVerifyError(CodeTimeout, errMsg)
	case strings.Contains(errMsg, "connection refused"):
		return NewVerifyError(CodeConnection, errMsg)
	case strings.Contains(errMsg, "EOF") || strings.Contains(errMsg, "connection reset"):
		return NewVerifyError(CodeConnection, errMsg)
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "name resolution"):
		return NewVerifyError(CodeDNS, errMsg)
	case strings.Contains(errMsg, "certificate") || strings.Contains(errMsg, "tls"):
		return NewVerifyError(CodeTLS, errMsg)
	case strings.Contains(errMsg, "context canceled"):
		return NewVerifyError(CodeCanceled, errMsg)
	default:
		return NewVerifyError(CodeTransientError, errMsg)
	}
}
