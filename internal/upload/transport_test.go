package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadPart(t *testing.T) {
	payload := []byte("encrypted-part-bytes")

	var gotMethod string
	var gotLength int64
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotLength = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewPartTransport()
	etag, err := transport.UploadPart(context.Background(), server.URL, bytes.NewReader(payload), int64(len(payload)), 1)
	require.NoError(t, err)

	assert.Equal(t, "abc123", etag, "etag quotes must be stripped")
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, int64(len(payload)), gotLength, "content length must be declared explicitly")
	assert.Equal(t, payload, gotBody)
}

func TestUploadPart_MissingIdentifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		// 200 but no ETag header
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewPartTransport()
	_, err := transport.UploadPart(context.Background(), server.URL, strings.NewReader("x"), 1, 3)

	var missing *MissingPartIdentifierError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 3, missing.PartNumber)
}

func TestUploadPart_EmptyIdentifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `""`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewPartTransport()
	_, err := transport.UploadPart(context.Background(), server.URL, strings.NewReader("x"), 1, 1)

	var missing *MissingPartIdentifierError
	assert.ErrorAs(t, err, &missing)
}

func TestUploadPart_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport := NewPartTransport()
	_, err := transport.UploadPart(context.Background(), server.URL, strings.NewReader("x"), 1, 2)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 2, transportErr.PartNumber)
}

func TestUploadPart_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"ok"`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := NewPartTransport()
	_, err := transport.UploadPart(ctx, server.URL, strings.NewReader("x"), 1, 1)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, errors.Is(err, context.Canceled))
}
