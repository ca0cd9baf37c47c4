package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// RequestAuth carries the per-connection header material for outbound vendor
// calls: the bearer credential and, for vendors that route by tenant, the
// tenant header name and value.
type RequestAuth struct {
	BearerToken  string
	TenantHeader string
	TenantID     string
}

// StatusError is returned when a vendor endpoint answers with an unexpected
// HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// Transient reports whether the status is worth retrying: server-side
// failures and throttling responses are, client errors are not.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// ErrMissingContentLocation is returned when a kickoff is accepted but the
// vendor omits the status URL header, leaving the export unpollable.
var ErrMissingContentLocation = fmt.Errorf("202 response missing Content-Location header")

// PollResult is the outcome of one status poll.
type PollResult struct {
	InProgress bool
	Progress   string
	Manifest   *ExportManifest
}

// BulkClient issues the outbound HTTP calls of a bulk export lifecycle:
// kickoff, status poll, NDJSON file download, and type-scoped search.
// Transient transport failures (network errors, 5xx, 429) are retried with
// jittered exponential backoff; 4xx responses are surfaced immediately.
type BulkClient struct {
	httpClient *http.Client
	logger     zerolog.Logger
	maxRetries uint64
	baseDelay  time.Duration
}

func NewBulkClient(timeout time.Duration, maxRetries uint, baseDelay time.Duration, logger zerolog.Logger) *BulkClient {
	if maxRetries == 0 {
		maxRetries = 1
	}
	return &BulkClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		maxRetries: uint64(maxRetries - 1),
		baseDelay:  baseDelay,
	}
}

func (c *BulkClient) backoff() retry.Backoff {
	b := retry.NewExponential(c.baseDelay)
	b = retry.WithJitter(c.baseDelay/4, b)
	return retry.WithMaxRetries(c.maxRetries, b)
}

func (c *BulkClient) newRequest(ctx context.Context, url string, auth RequestAuth, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.BearerToken)
	req.Header.Set("Accept", accept)
	if auth.TenantHeader != "" && auth.TenantID != "" {
		req.Header.Set(auth.TenantHeader, auth.TenantID)
	}
	return req, nil
}

// get issues one GET with retry on transient failures. The caller receives
// the final response with its body unread.
func (c *BulkClient) get(ctx context.Context, url string, auth RequestAuth, accept string, extraHeaders map[string]string) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := c.newRequest(ctx, url, auth, accept)
		if err != nil {
			return err
		}
		for k, v := range extraHeaders {
			req.Header.Set(k, v)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Str("url", url).Err(err).Msg("vendor call failed, will retry")
			return retry.RetryableError(err)
		}

		if r.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			r.Body.Close()
			serr := &StatusError{Code: r.StatusCode, Body: strings.TrimSpace(string(body))}
			if serr.Transient() {
				c.logger.Warn().Str("url", url).Int("status", r.StatusCode).Msg("transient vendor status, will retry")
				return retry.RetryableError(serr)
			}
			return serr
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Kickoff issues the asynchronous export request and returns the status URL
// from the Content-Location header. Anything other than a 202 with that
// header is a failure.
func (c *BulkClient) Kickoff(ctx context.Context, kickoffURL string, auth RequestAuth) (string, error) {
	resp, err := c.get(ctx, kickoffURL, auth, "application/fhir+json", map[string]string{
		"Prefer": "respond-async",
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", &StatusError{Code: resp.StatusCode}
	}

	statusURL := resp.Header.Get("Content-Location")
	if statusURL == "" {
		return "", ErrMissingContentLocation
	}
	return statusURL, nil
}

// PollStatus issues one poll against the export status URL. 202 means the
// export is still running; 200 carries the completed manifest.
func (c *BulkClient) PollStatus(ctx context.Context, statusURL string, auth RequestAuth) (*PollResult, error) {
	resp, err := c.get(ctx, statusURL, auth, "application/fhir+json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return &PollResult{
			InProgress: true,
			Progress:   resp.Header.Get("X-Progress"),
		}, nil
	case http.StatusOK:
		var manifest ExportManifest
		if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
			return nil, fmt.Errorf("decode export manifest: %w", err)
		}
		return &PollResult{Manifest: &manifest}, nil
	default:
		return nil, &StatusError{Code: resp.StatusCode}
	}
}

// Download fetches one NDJSON output file and returns its body.
func (c *BulkClient) Download(ctx context.Context, fileURL string, auth RequestAuth) ([]byte, error) {
	resp, err := c.get(ctx, fileURL, auth, "application/fhir+ndjson", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read output file %s: %w", fileURL, err)
	}
	return body, nil
}

// SearchPage fetches one page of a type-scoped search and decodes the
// searchset bundle. The direct (non-bulk) sync path walks pages by feeding
// Bundle.NextLink back into this method.
func (c *BulkClient) SearchPage(ctx context.Context, searchURL string, auth RequestAuth) (*Bundle, error) {
	resp, err := c.get(ctx, searchURL, auth, "application/fhir+json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var bundle Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("decode search bundle: %w", err)
	}
	return &bundle, nil
}
