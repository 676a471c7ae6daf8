package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"media-gateway/models"
)

// ExtractRequest is what the gateway relays to the extractor service.
// The gateway does not interpret format or quality.
type ExtractRequest struct {
	SourceURL string `json:"source_url"`
	Format    string `json:"format,omitempty"`
	Quality   string `json:"quality,omitempty"`
}

// ExtractResult is the extractor's final answer: an opaque reference to
// wherever the extractor stored the media.
type ExtractResult struct {
	ResultRef string `json:"result_ref"`
}

// ProgressFunc receives extraction progress in the range 0-100
type ProgressFunc func(progress int)

// Extractor is the narrow interface to the external media-retrieval
// subsystem. How media is fetched, transcoded, or stored is entirely the
// extractor's business.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest, onProgress ProgressFunc) (*ExtractResult, error)
}

// HTTPExtractor talks to an extractor service over HTTP: one POST to
// start an extraction, then polling until it reports done.
type HTTPExtractor struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewHTTPExtractor creates an extractor client for the given base URL
func NewHTTPExtractor(baseURL string) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollInterval: 2 * time.Second,
	}
}

// extractionStatus is the extractor's poll response
type extractionStatus struct {
	ID        string `json:"id"`
	Progress  int    `json:"progress"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
	ResultRef string `json:"result_ref,omitempty"`
}

// Extract starts an extraction and polls it to completion. Every call
// goes through the extractor circuit breaker; transient HTTP failures on
// individual polls are retried with backoff before counting as a failure.
func (e *HTTPExtractor) Extract(ctx context.Context, req ExtractRequest, onProgress ProgressFunc) (*ExtractResult, error) {
	id, err := WithCircuitBreaker(ctx, BreakerExtractor, func() (string, error) {
		return e.start(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		case <-ticker.C:
		}

		var status *extractionStatus
		err := WithRetry(ctx, DefaultRetryConfig, func() error {
			var pollErr error
			status, pollErr = e.poll(ctx, id)
			return pollErr
		})
		if err != nil {
			return nil, fmt.Errorf("extraction %s lost: %w", id, err)
		}

		if onProgress != nil {
			onProgress(status.Progress)
		}

		if status.Done {
			if status.Error != "" {
				return nil, fmt.Errorf("extraction failed: %s", status.Error)
			}
			return &ExtractResult{ResultRef: status.ResultRef}, nil
		}
	}
}

// start submits a new extraction and returns its ID
func (e *HTTPExtractor) start(ctx context.Context, req ExtractRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode extract request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build extract request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("extractor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var started extractionStatus
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", fmt.Errorf("failed to decode extractor response: %w", err)
	}
	if started.ID == "" {
		return "", fmt.Errorf("extractor returned no extraction id")
	}

	return started.ID, nil
}

// poll fetches the current status of an extraction
func (e *HTTPExtractor) poll(ctx context.Context, id string) (*extractionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/extract/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extractor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor returned status %d", resp.StatusCode)
	}

	var status extractionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode extractor status: %w", err)
	}

	return &status, nil
}

// Compile-time interface verification
var _ Extractor = (*HTTPExtractor)(nil)

// JobToExtractRequest maps a job onto an extract request
func JobToExtractRequest(job *models.Job) ExtractRequest {
	return ExtractRequest{
		SourceURL: job.SourceURL,
		Format:    job.Options.Format,
		Quality:   job.Options.Quality,
	}
}
