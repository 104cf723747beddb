package vaultsdk

import (
	"fmt"

	"github.com/imroc/req/v3"
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied

	CodePresignFailed = "E_PRESIGN_FAILED" // a failure while issuing presigned upload targets.
)

// APIError represents coordinator API errors
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// PresignError means the coordinator could not issue part urls. No session
// exists at that point, so the whole request is clean to retry upstream.
type PresignError struct {
	Err error
}

func (e *PresignError) Error() string {
	return fmt.Sprintf("presign request failed: %v", e.Err)
}

func (e *PresignError) Unwrap() error { return e.Err }

// handleAPIError is a helper that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but the api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok {
			return fmt.Errorf("%s %w", operation, err)
		}
		return fmt.Errorf("api error: %s %s", operation, resp.Dump())
	}

	return nil
}
