package queue

import (
	"net/http"
	"time"
)

// Worker delivers queued notifications to an HTTP webhook.
type Worker struct {
	webhookURL string
	http       *http.Client
}

func NewWorker(webhookURL string, httpClient *http.Client) *Worker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Worker{
		webhookURL: webhookURL,
		http:       httpClient,
	}
}
