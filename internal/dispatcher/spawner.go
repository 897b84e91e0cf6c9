package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPSpawner posts tasks to an external worker runner.
type HTTPSpawner struct {
	baseURL    string
	httpClient *http.Client
}

type spawnResponse struct {
	ID string `json:"id"`
}

func NewHTTPSpawner(baseURL string, timeout time.Duration) *HTTPSpawner {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSpawner{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSpawner) Spawn(ctx context.Context, task Task) (string, error) {
	url := fmt.Sprintf("%s/api/v1/workers", s.baseURL)

	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call worker runner: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("worker runner returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var sr spawnResponse
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &sr); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
	}
	if sr.ID == "" {
		sr.ID = task.ID
	}
	return sr.ID, nil
}

func (s *HTTPSpawner) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", s.baseURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("worker runner health check failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker runner health check returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSpawner only logs tasks. Used for dry runs.
type LogSpawner struct{}

func (LogSpawner) Spawn(_ context.Context, task Task) (string, error) {
	zap.S().Named("log_spawner").Infow("task",
		"course_id", task.CourseID,
		"phase", task.Phase,
		"cycle", task.Cycle,
		"segment", task.Segment,
		"agent", task.Agent,
		"units", fmt.Sprintf("%d-%d", task.StartUnit, task.EndUnit),
		"channel", task.Channel,
		"avoid", len(task.Avoid),
	)
	return task.ID, nil
}
