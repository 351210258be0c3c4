package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SendJSON posts a JSON body to a full URL and returns the raw response body.
// It does not assume any provider (OpenAI/Llama/etc.); callers decide the URL
// and headers. Transport errors and 5xx responses are retried up to
// maxRetries times with a short linear backoff. 4xx and parse-level problems
// are the caller's to handle and are never retried here.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, maxRetries int, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			logger.Warn("llm.http.retry", "req_id", reqID, "attempt", attempt, "error", lastErr)
		}

		raw, status, err := sendOnce(ctx, client, url, bs, headers)
		if err == nil {
			logger.Info("llm.http.response",
				"req_id", reqID,
				"url", url,
				"status", status,
				"bytes", len(raw),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return raw, nil
		}

		lastErr = err
		// Client errors indicate a bad request or prompt/schema mismatch,
		// not a transient condition.
		if status >= 400 && status < 500 {
			break
		}
	}

	logger.Error("llm.http.send_error", "req_id", reqID, "error", lastErr, "elapsed_ms", time.Since(start).Milliseconds())
	return nil, lastErr
}

func sendOnce(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
