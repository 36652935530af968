// Package gcpauth provides HTTP clients authorized with Google application
// default credentials.
package gcpauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope is the scope required by Vertex AI.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Source lazily resolves default credentials once and reuses the resulting
// client. A failed lookup is retried on the next call.
type Source struct {
	scopes  []string
	timeout time.Duration

	mu     sync.Mutex
	client *http.Client
}

// NewSource creates a Source for the given scopes; the cloud-platform scope is
// used when none are supplied.
func NewSource(timeout time.Duration, scopes ...string) *Source {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	return &Source{scopes: scopes, timeout: timeout}
}

// HTTPClient returns an oauth2-authorized client.
func (s *Source) HTTPClient(ctx context.Context) (*http.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, s.scopes...)
	if err != nil {
		return nil, fmt.Errorf("gcpauth: find default credentials: %w", err)
	}
	// The token source outlives ctx, so it must not be bound to it.
	client := oauth2.NewClient(context.Background(), creds.TokenSource)
	client.Timeout = s.timeout
	s.client = client
	return client, nil
}
