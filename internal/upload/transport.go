package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PartTransport PUTs one byte range of the encrypted file to one presigned
// URL and extracts the backend-issued part identifier. It is the only
// network suspension point inside the part loop.
type PartTransport struct {
	client  *http.Client
	timeout time.Duration
}

type TransportOption func(*PartTransport)

// WithHTTPClient overrides the HTTP client used for part uploads.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *PartTransport) {
		t.client = client
	}
}

// WithPartTimeout bounds each individual part upload. A timed-out part is
// never recorded as uploaded.
func WithPartTimeout(d time.Duration) TransportOption {
	return func(t *PartTransport) {
		t.timeout = d
	}
}

func NewPartTransport(opts ...TransportOption) *PartTransport {
	/*
		not using `req` here:
		- presigned urls need no auth or base url
		- the body must stream with an exact Content-Length, req.SetBody
		  buffers readers it cannot size
	*/
	t := &PartTransport{
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// UploadPart streams exactly length bytes from body to url and returns the
// part identifier the backend issued. An empty identifier fails with
// MissingPartIdentifierError; the caller must not mark the part uploaded.
func (t *PartTransport) UploadPart(ctx context.Context, url string, body io.Reader, length int64, partNumber int) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", &TransportError{PartNumber: partNumber, Err: err}
	}
	req.ContentLength = length // REQUIRED for presigned urls, the body is never buffered
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &TransportError{PartNumber: partNumber, Err: err}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return "", &TransportError{PartNumber: partNumber, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	etag := strings.Trim(resp.Header.Get("ETag"), "\"")
	if etag == "" {
		return "", &MissingPartIdentifierError{PartNumber: partNumber}
	}

	return etag, nil
}
