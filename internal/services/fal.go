package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// fal.ai Queue Client
// Generic client for fal's queue API: submit a request → poll its status with
// exponential backoff → fetch the result payload. Model-specific shapes live
// in the callers (kling.go).
// ---------------------------------------------------------------------------

const (
	falQueueBaseURL = "https://queue.fal.run"

	falInitialDelay      = 10 * time.Second // first poll delay; clips take tens of seconds
	falPollMinInterval   = 5 * time.Second
	falPollMaxInterval   = 20 * time.Second
	falPollBackoffFactor = 1.5
	falMaxPollDuration   = 10 * time.Minute // hard timeout per request
)

// FalService talks to fal.ai's queue API.
type FalService struct {
	apiKey     string
	httpClient *http.Client
}

func NewFalService(apiKey string) *FalService {
	return &FalService{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per HTTP call, not the full poll cycle
		},
	}
}

// FalAPIError is a non-2xx response from fal. Callers inspect the status to
// decide whether an alternative endpoint is worth trying.
type FalAPIError struct {
	StatusCode int
	Body       string
}

func (e *FalAPIError) Error() string {
	return fmt.Sprintf("fal returned status %d: %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err is a fal authorization failure (401/403).
// Auth failures on one endpoint are skip-and-try-next; anything else is fatal.
func IsAuthError(err error) bool {
	var apiErr *FalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

type falSubmitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatusResponse struct {
	Status string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED
	Error  string `json:"error,omitempty"`
}

// Run submits input to an endpoint, waits for completion, and returns the raw
// result payload for the caller to decode.
func (s *FalService) Run(ctx context.Context, endpointID string, input map[string]interface{}) (json.RawMessage, error) {
	submitted, err := s.submit(ctx, endpointID, input)
	if err != nil {
		return nil, err
	}

	log.Printf("[fal] Request submitted (endpoint=%s, request_id=%s)", endpointID, submitted.RequestID)

	if err := s.pollUntilDone(ctx, endpointID, submitted); err != nil {
		return nil, err
	}

	return s.fetchResult(ctx, endpointID, submitted)
}

func (s *FalService) submit(ctx context.Context, endpointID string, input map[string]interface{}) (*falSubmitResponse, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fal input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", falQueueBaseURL+"/"+endpointID, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create fal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal submit failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read fal response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &FalAPIError{StatusCode: resp.StatusCode, Body: truncateString(string(body), 500)}
	}

	var submitted falSubmitResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		return nil, fmt.Errorf("failed to parse fal submit response: %w (body: %s)", err, string(body))
	}
	if submitted.RequestID == "" {
		return nil, fmt.Errorf("no request_id in fal submit response: %s", string(body))
	}
	return &submitted, nil
}

// pollUntilDone polls the request's status with exponential backoff:
// 5s → 7.5s → 11.25s → 16.9s → 20s (capped), after an initial delay.
func (s *FalService) pollUntilDone(ctx context.Context, endpointID string, submitted *falSubmitResponse) error {
	deadline := time.Now().Add(falMaxPollDuration)
	currentInterval := falPollMinInterval
	pollCount := 0

	select {
	case <-ctx.Done():
		return fmt.Errorf("fal request cancelled during initial wait: %w", ctx.Err())
	case <-time.After(falInitialDelay):
	}

	statusURL := submitted.StatusURL
	if statusURL == "" {
		statusURL = fmt.Sprintf("%s/%s/requests/%s/status", falQueueBaseURL, appAlias(endpointID), submitted.RequestID)
	}

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("fal request timed out after %v (polled %d times, request_id=%s)", falMaxPollDuration, pollCount, submitted.RequestID)
		}
		pollCount++

		status, err := s.getJSON(ctx, statusURL)
		if err != nil {
			return fmt.Errorf("failed to poll fal status (attempt %d): %w", pollCount, err)
		}

		var parsed falStatusResponse
		if err := json.Unmarshal(status, &parsed); err != nil {
			return fmt.Errorf("failed to parse fal status: %w (body: %s)", err, string(status))
		}

		switch parsed.Status {
		case "COMPLETED":
			log.Printf("[fal] Poll %d: completed (request_id=%s)", pollCount, submitted.RequestID)
			return nil
		case "IN_QUEUE", "IN_PROGRESS", "":
			log.Printf("[fal] Poll %d: status=%s (next poll in %v)", pollCount, parsed.Status, currentInterval)
			select {
			case <-ctx.Done():
				return fmt.Errorf("fal request cancelled: %w", ctx.Err())
			case <-time.After(currentInterval):
			}
			next := time.Duration(float64(currentInterval) * falPollBackoffFactor)
			if next > falPollMaxInterval {
				next = falPollMaxInterval
			}
			currentInterval = next
		default:
			errMsg := parsed.Error
			if errMsg == "" {
				errMsg = parsed.Status
			}
			return fmt.Errorf("fal request failed: %s (request_id=%s)", errMsg, submitted.RequestID)
		}
	}
}

func (s *FalService) fetchResult(ctx context.Context, endpointID string, submitted *falSubmitResponse) (json.RawMessage, error) {
	responseURL := submitted.ResponseURL
	if responseURL == "" {
		responseURL = fmt.Sprintf("%s/%s/requests/%s", falQueueBaseURL, appAlias(endpointID), submitted.RequestID)
	}

	body, err := s.getJSON(ctx, responseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fal result: %w", err)
	}
	return body, nil
}

func (s *FalService) getJSON(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &FalAPIError{StatusCode: resp.StatusCode, Body: truncateString(string(body), 500)}
	}
	return body, nil
}

// appAlias reduces a full endpoint ID (fal-ai/kling-video/v2.6/pro/...) to
// the owner/app pair the queue's status and result routes are keyed by.
func appAlias(endpointID string) string {
	parts := strings.Split(endpointID, "/")
	if len(parts) <= 2 {
		return endpointID
	}
	return strings.Join(parts[:2], "/")
}
