package veo

import (
	"context"
	"net/http"
)

// ClientSource hands out an authenticated HTTP client. Acquiring one may fail
// when credentials are unavailable.
type ClientSource interface {
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// StaticSource always returns the same client. It is used for the local
// emulator and in tests.
type StaticSource struct {
	Client *http.Client
}

func (s StaticSource) HTTPClient(context.Context) (*http.Client, error) {
	if s.Client == nil {
		return http.DefaultClient, nil
	}
	return s.Client, nil
}
