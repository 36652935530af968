package veo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/infra"
)

// DefaultModel is the only Veo model that accepts asset reference images.
const DefaultModel = "veo-2.0-generate-exp"

// Options controls how the Veo client is configured.
type Options struct {
	BaseURL   string
	ProjectID string
	Location  string
	Model     string
	Source    ClientSource
	Logger    *infra.Logger
}

// Client talks to the Vertex AI long-running prediction endpoints. Every
// failure leaves this package as a *domain.Error; callers never inspect HTTP
// shapes themselves.
type Client struct {
	baseURL   string
	projectID string
	location  string
	model     string
	source    ClientSource
	logger    *infra.Logger
}

// Generation is the transport-level description of one predictLongRunning call.
type Generation struct {
	Prompt          string
	ReferenceImages []domain.ReferenceImage
	Parameters      Parameters
}

// NewClient constructs a Veo client with defaults for location and model.
func NewClient(opts Options) (*Client, error) {
	if opts.Source == nil {
		return nil, errors.New("veo: client source is required")
	}
	projectID := strings.TrimSpace(opts.ProjectID)
	if projectID == "" {
		return nil, errors.New("veo: project id is required")
	}
	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = "us-central1"
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:   baseURL,
		projectID: projectID,
		location:  location,
		model:     model,
		source:    opts.Source,
		logger:    infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// PredictLongRunning submits one generation and returns the operation handle.
// It issues exactly one request and never retries.
func (c *Client) PredictLongRunning(ctx context.Context, gen Generation) (domain.OperationHandle, error) {
	client, err := c.source.HTTPClient(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("veo: authentication failed")
		return "", domain.NewError(domain.ErrAuth, domain.InitiateAuthMessage, err)
	}

	payload := PredictRequest{
		Instances: []Instance{{
			Prompt:          gen.Prompt,
			ReferenceImages: encodeReferenceImages(gen.ReferenceImages),
		}},
		Parameters: gen.Parameters,
	}
	endpoint := c.modelEndpoint(c.projectID, c.location, c.model, "predictLongRunning")

	status, raw, err := c.post(ctx, client, endpoint, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("veo: predict request failed")
		if isAuthFailure(err) {
			return "", domain.NewError(domain.ErrAuth, domain.InitiateAuthMessage, err)
		}
		return "", domain.NewError(domain.ErrTransport, domain.InitiateFailureMessage, err)
	}
	if status >= http.StatusBadRequest {
		apiErr := decodeAPIError(raw)
		cause := fmt.Errorf("veo: predict status %d: %s", status, apiErr.Error.Message)
		c.logger.Error().Int("status", status).Str("message", apiErr.Error.Message).Msg("veo: predict rejected")
		switch {
		case status == http.StatusTooManyRequests || domain.IsResourceExhausted(apiErr.Error.Code, apiErr.Error.Message):
			return "", domain.NewError(domain.ErrRateLimit, domain.RateLimitMessage, cause)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return "", domain.NewError(domain.ErrAuth, domain.InitiateAuthMessage, cause)
		default:
			return "", domain.NewError(domain.ErrTransport, domain.InitiateFailureMessage, cause)
		}
	}

	var decoded PredictResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || strings.TrimSpace(decoded.Name) == "" {
		if err == nil {
			err = errors.New("veo: predict response has no operation name")
		}
		return "", domain.NewError(domain.ErrTransport, domain.InitiateShapeMessage, err)
	}

	c.logger.Debug().
		Str("operation", decoded.Name).
		Int("reference_images", len(gen.ReferenceImages)).
		Msg("veo: generation initiated")
	return domain.OperationHandle(decoded.Name), nil
}

// FetchOperation queries the status of an operation once.
func (c *Client) FetchOperation(ctx context.Context, handle domain.OperationHandle) (domain.OperationStatus, error) {
	parts, err := ParseHandle(handle)
	if err != nil {
		c.logger.Error().Err(err).Msg("veo: invalid operation name")
		return domain.OperationStatus{}, domain.NewError(domain.ErrTransport, domain.InvalidHandleMessage, err)
	}
	client, err := c.source.HTTPClient(ctx)
	if err != nil {
		return domain.OperationStatus{}, domain.NewError(domain.ErrAuth, domain.PollAuthMessage, err)
	}

	endpoint := c.modelEndpoint(parts.Project, parts.Location, parts.Model, "fetchPredictOperation")
	status, raw, err := c.post(ctx, client, endpoint, FetchRequest{OperationName: string(handle)})
	if err != nil {
		return domain.OperationStatus{}, c.classifyFetchFailure(handle, err)
	}
	if status >= http.StatusBadRequest {
		return domain.OperationStatus{}, c.classifyFetchStatus(handle, endpoint, status, raw)
	}

	var op OperationResponse
	if err := json.Unmarshal(raw, &op); err != nil {
		return domain.OperationStatus{}, domain.NewError(domain.ErrTransport, domain.PollFailureMessage,
			fmt.Errorf("veo: decode operation: %w", err))
	}

	result := domain.OperationStatus{Name: op.Name, Done: op.Done, Error: op.Error}
	if result.Name == "" {
		result.Name = string(handle)
	}
	if op.Response != nil {
		result.Videos = op.Response.Videos
	}
	return result, nil
}

func (c *Client) classifyFetchFailure(handle domain.OperationHandle, err error) error {
	c.logger.Error().Err(err).Str("operation", string(handle)).Msg("veo: polling request failed")
	if isAuthFailure(err) {
		return domain.NewError(domain.ErrAuth, domain.PollAuthMessage, err)
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "resource exhausted") && strings.Contains(msg, "code: 8") {
		return domain.NewError(domain.ErrRateLimit, domain.RateLimitMessage, err)
	}
	return domain.NewError(domain.ErrTransport, domain.PollFailureMessage, err)
}

func (c *Client) classifyFetchStatus(handle domain.OperationHandle, endpoint string, status int, raw []byte) error {
	apiErr := decodeAPIError(raw)
	cause := fmt.Errorf("veo: fetch status %d: %s", status, firstNonEmpty(apiErr.Error.Message, strings.TrimSpace(string(raw))))
	switch status {
	case http.StatusNotFound:
		c.logger.Error().Str("operation", string(handle)).Str("endpoint", endpoint).Msg("veo: operation not found")
		return domain.NotFoundError(handle, cause)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return domain.NewError(domain.ErrRateLimit, domain.RateLimitMessage, cause)
	}
	c.logger.Error().Int("status", status).Str("operation", string(handle)).Msg("veo: polling rejected")
	if apiErr.Error.Message != "" {
		if domain.IsResourceExhausted(apiErr.Error.Code, apiErr.Error.Message) {
			return domain.NewError(domain.ErrRateLimit, domain.RateLimitMessage, cause)
		}
		return domain.NewError(domain.ErrTransport, apiErr.Error.Message, cause)
	}
	return domain.NewError(domain.ErrTransport, domain.PollFailureMessage, cause)
}

func (c *Client) modelEndpoint(project, location, model, method string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.baseURL, url.PathEscape(project), url.PathEscape(location), url.PathEscape(model), method)
}

func (c *Client) post(ctx context.Context, client *http.Client, endpoint string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("invoke veo: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read veo response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func encodeReferenceImages(images []domain.ReferenceImage) []ReferenceImage {
	if len(images) == 0 {
		return nil
	}
	out := make([]ReferenceImage, 0, len(images))
	for _, img := range images {
		out = append(out, ReferenceImage{
			Image: InlineImage{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(img.Data),
				MimeType:           img.MimeType,
			},
			ReferenceType: ReferenceTypeAsset,
		})
	}
	return out
}

func decodeAPIError(raw []byte) ErrorResponse {
	var apiErr ErrorResponse
	_ = json.Unmarshal(raw, &apiErr)
	return apiErr
}

func isAuthFailure(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
