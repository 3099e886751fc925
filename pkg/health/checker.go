// Package health polls service health endpoints on behalf of the monitor
// loop. The polling strategy lives here; the rollback decision rule lives
// in the slot engine, which only consumes unhealthy-boot signals.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Checker probes a single health endpoint. A nil error means healthy.
type Checker interface {
	Check(ctx context.Context, endpoint string) error
}

// HTTPChecker probes endpoints with GET and expects a JSON body of the
// form {"status": "ok"}.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker builds a checker with a per-request timeout.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{client: &http.Client{Timeout: timeout}}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Check performs one probe.
func (c *HTTPChecker) Check(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("invalid health endpoint %s: %w", endpoint, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint %s returned %d", endpoint, resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("health endpoint %s returned invalid body: %w", endpoint, err)
	}
	if !strings.EqualFold(body.Status, "ok") {
		return fmt.Errorf("health endpoint %s reported status %q", endpoint, body.Status)
	}
	return nil
}

// Quorum probes every endpoint once and reports whether at least quorum of
// them are healthy. quorum <= 0 means all endpoints must pass; an empty
// endpoint list is vacuously healthy.
func Quorum(ctx context.Context, checker Checker, endpoints []string, quorum int) bool {
	if len(endpoints) == 0 {
		return true
	}
	required := quorum
	if required <= 0 || required > len(endpoints) {
		required = len(endpoints)
	}

	healthy := 0
	for _, endpoint := range endpoints {
		if err := checker.Check(ctx, endpoint); err != nil {
			slog.Warn("health_probe_failed", "endpoint", endpoint, "error", err)
			continue
		}
		healthy++
	}

	slog.Info("health_quorum_evaluated",
		"healthy", healthy, "required", required, "endpoints", len(endpoints))
	return healthy >= required
}

// Stub is a Checker for tests.
type Stub struct {
	Err error
}

func (s *Stub) Check(ctx context.Context, endpoint string) error {
	return s.Err
}
