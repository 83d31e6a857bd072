package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Stealph7/AgriConnect/internal/config"
)

const userAgent = "AgriConnect-Webhook/1.0"

// Queue is the slice of the repository the worker needs.
type Queue interface {
	ClaimDue(ctx context.Context, limit int) ([]Delivery, error)
	RecordAttempt(ctx context.Context, d Delivery, responseCode *int, success bool, sendErr string) error
}

// Worker polls the delivery queue and POSTs due payloads to their endpoints.
// Outcomes only ever land in the queue and the audit log; a failed send never
// propagates past the worker.
type Worker struct {
	queue        Queue
	client       *http.Client
	logger       *log.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewWorker(queue Queue, cfg config.WebhookConfig, logger *log.Logger) *Worker {
	return &Worker{
		queue:        queue,
		client:       &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
	}
}

// Start runs the poll loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		w.logger.Printf("webhook worker started, polling every %s", w.pollInterval)
		for {
			select {
			case <-ctx.Done():
				w.logger.Println("webhook worker stopped")
				return
			case <-ticker.C:
				if _, err := w.DispatchOnce(ctx); err != nil {
					w.logger.Printf("webhook worker: poll failed: %v", err)
				}
			}
		}
	}()
}

// DispatchOnce claims one batch of due deliveries, attempts each, and records
// the outcomes. It returns how many deliveries were attempted.
func (w *Worker) DispatchOnce(ctx context.Context) (int, error) {
	deliveries, err := w.queue.ClaimDue(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due deliveries: %w", err)
	}

	for _, d := range deliveries {
		code, sendErr := w.attempt(ctx, d)

		errText := ""
		if sendErr != nil {
			errText = sendErr.Error()
			w.logger.Printf("webhook delivery %s to %s failed (attempt %d): %v", d.ID, d.URL, d.AttemptCount+1, sendErr)
		}
		if err := w.queue.RecordAttempt(ctx, d, code, sendErr == nil, errText); err != nil {
			w.logger.Printf("webhook delivery %s: record attempt: %v", d.ID, err)
		}
	}
	return len(deliveries), nil
}

// attempt POSTs one payload. Any transport error or non-2xx status counts as
// a failed attempt.
func (w *Worker) attempt(ctx context.Context, d Delivery) (*int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event", d.Event)
	req.Header.Set("X-Signature", Sign(d.Payload, d.Secret))
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	code := resp.StatusCode
	if code < 200 || code >= 300 {
		return &code, fmt.Errorf("endpoint returned %d", code)
	}
	return &code, nil
}
