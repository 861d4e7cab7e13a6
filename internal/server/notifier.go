package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/policy"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/runstore"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// NotificationPayload is the JSON body posted to a run's webhook
type NotificationPayload struct {
	RunID       string             `json:"run_id"`
	Status      runstore.Status    `json:"status"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	EndedAt     time.Time          `json:"ended_at,omitempty"`
	Fitness     float64            `json:"fitness,omitempty"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
	Evaluations int                `json:"evaluations"`
	Timestamp   int64              `json:"timestamp"`
}

// Notifier posts run outcomes to webhooks, retrying with exponential backoff.
type Notifier struct {
	httpClient *http.Client
	retry      policy.RetryPolicy
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier retrying up to maxRetries times after the first attempt.
func NewNotifier(maxRetries int, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := utils.NewExponentialBackoff(time.Second, 30*time.Second, 2, nil)
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      policy.NewRetryPolicy(maxRetries > 0, maxRetries, backoff),
		logger:     logger,
	}
}

// WithRetryPolicy replaces the retry policy
func (n *Notifier) WithRetryPolicy(p policy.RetryPolicy) *Notifier {
	n.retry = p
	return n
}

// Notify posts the record asynchronously. {run_id} in the URL is substituted.
func (n *Notifier) Notify(rec *runstore.Record) {
	if rec == nil || rec.WebhookURL == "" {
		return
	}
	url := strings.ReplaceAll(rec.WebhookURL, "{run_id}", rec.ID)
	payload := payloadFor(rec)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Send(context.Background(), url, payload); err != nil {
			n.logger.Error("failed to send notification after retries",
				zap.String("run_id", rec.ID),
				zap.String("callback_url", url),
				zap.Error(err))
		}
	}()
}

// Wait blocks until pending notifications finish
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Send posts payload, retrying per the retry policy. It returns the last error.
func (n *Notifier) Send(ctx context.Context, url string, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := n.retry.GetBackoffDuration(attempt)
			n.logger.Debug("retrying notification",
				zap.String("run_id", payload.RunID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = n.post(ctx, url, payload.RunID, body)
		if lastErr == nil {
			n.logger.Info("notification sent",
				zap.String("run_id", payload.RunID),
				zap.String("status", string(payload.Status)))
			return nil
		}
		n.logger.Warn("notification attempt failed",
			zap.String("run_id", payload.RunID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
		if !n.retry.ShouldRetry(attempt, lastErr) {
			return lastErr
		}
	}
}

func (n *Notifier) post(ctx context.Context, url, runID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pilecal/1.0")
	req.Header.Set("X-Pilecal-Run-ID", runID)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, snippet)
}

func payloadFor(rec *runstore.Record) NotificationPayload {
	p := NotificationPayload{
		RunID:     rec.ID,
		Status:    rec.Status,
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt,
		EndedAt:   rec.EndedAt,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if rec.Result != nil {
		p.Fitness = rec.Result.Fitness
		p.Parameters = rec.Result.Parameters
		p.Evaluations = rec.Result.Evaluations
	}
	return p
}
