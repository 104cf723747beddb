// Package vaultsdk is the HTTP client for the vault coordinator API. It only
// speaks the control plane: presigned part targets come from here, the bytes
// themselves go straight to the storage backend.
package vaultsdk

import (
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/syftvault/internal/version"
)

type Client struct {
	client *req.Client
}

type Option func(*Client)

// WithAuthToken sets the bearer token for coordinator calls.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.client.SetCommonBearerAuthToken(token)
	}
}

// WithTimeout bounds each coordinator call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.SetTimeout(d)
	}
}

func New(baseURL string, opts ...Option) *Client {
	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent("SyftVault/" + version.Version).
		SetCommonErrorResult(&APIError{})

	c := &Client{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
