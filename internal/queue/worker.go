package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/metrics"
)

// HandleNotificationTask forwards a notification to the webhook. Returning an
// error lets asynq retry the delivery.
func (w *Worker) HandleNotificationTask(ctx context.Context, task *asynq.Task) error {
	if !json.Valid(task.Payload()) {
		return fmt.Errorf("%s payload is not valid JSON: %w", task.Type(), asynq.SkipRetry)
	}
	if w.webhookURL == "" {
		slog.Info("notification dropped, no webhook configured", "type", task.Type())
		return nil
	}

	envelope, err := json.Marshal(struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: task.Type(), Payload: task.Payload()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(envelope))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(task.Type(), "error").Inc()
		return fmt.Errorf("webhook request error: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		metrics.NotificationsSent.WithLabelValues(task.Type(), "error").Inc()
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		metrics.NotificationsSent.WithLabelValues(task.Type(), "rejected").Inc()
		return fmt.Errorf("webhook rejected %s with status %d: %w", task.Type(), resp.StatusCode, asynq.SkipRetry)
	}
	metrics.NotificationsSent.WithLabelValues(task.Type(), "delivered").Inc()
	return nil
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePostOutcome, w.HandleNotificationTask)
	mux.HandleFunc(TaskTypeWeeklyReport, w.HandleNotificationTask)
	mux.HandleFunc(TaskTypeRenewal, w.HandleNotificationTask)
}
