package downloader

import (
	"errors"
	"fmt"
)

const (
	CodeRateLimited   = "E_RATE_LIMITED"   // remote asked us to slow down
	CodeForbidden     = "E_FORBIDDEN"      // access denied, not retryable
	CodeNotFound      = "E_NOT_FOUND"      // entry vanished remotely
	CodeVerifyFailed  = "E_VERIFY_FAILED"  // size or checksum mismatch after download
	CodeInternalError = "E_INTERNAL_ERROR" // remote 5xx
	CodeUnknownError  = "E_UNKNOWN_ERR"
)

// TransferError is a download failure with a stable code the retry logic
// can dispatch on.
type TransferError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func NewTransferError(code, message string) *TransferError {
	return &TransferError{Code: code, Message: message}
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error: %s - %s", e.Code, e.Message)
}

// IsRateLimited reports whether err carries the rate-limit code.
func IsRateLimited(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Code == CodeRateLimited
}

// IsRetryable reports whether a retry could plausibly succeed. Forbidden
// and not-found are terminal; verify failures retry because a torn read
// during a remote update produces them transiently.
func IsRetryable(err error) bool {
	var te *TransferError
	if !errors.As(err, &te) {
		// transport errors without a code are assumed transient
		return true
	}
	switch te.Code {
	case CodeForbidden, CodeNotFound:
		return false
	default:
		return true
	}
}
