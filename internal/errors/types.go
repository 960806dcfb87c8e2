package errors

import "fmt"

// Stable error codes surfaced on accounts and in API error envelopes.
const (
	CodeFetchError     = "fetch_error"
	CodeAuthError      = "auth_error"
	CodeTransientError = "transient_error"
	CodeTimeout        = "timeout"
	CodeConnection     = "connection_error"
	CodeDNS            = "dns_error"
	CodeTLS            = "tls_error"
	CodeCanceled       = "request_canceled"
)

// VerifyError is a classified per-credential verification failure. It is
// captured into the account's error code and never propagates upward.
type VerifyError struct {
	Code    string
	Message string
}

func (e *VerifyError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewVerifyError builds a VerifyError with the given code and message.
func NewVerifyError(code, message string) *VerifyError {
	return &VerifyError{Code: code, Message: message}
}

// FetchError is a cycle-level failure reaching or reading the remote
// source. It aborts the refresh cycle before any account is created.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
