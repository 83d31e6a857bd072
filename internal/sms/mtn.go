package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Stealph7/AgriConnect/internal/config"
)

const mtnDefaultBaseURL = "https://api.mtn.com/v1"

// MTNProvider talks to the MTN messaging API with a bearer API key.
type MTNProvider struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	senderID string
}

func NewMTNProvider(cfg config.SMSConfig) *MTNProvider {
	base := cfg.BaseURL
	if base == "" {
		base = mtnDefaultBaseURL
	}
	return &MTNProvider{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(base, "/"),
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
	}
}

func (p *MTNProvider) Send(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(map[string]string{
		"from":    p.senderID,
		"to":      normalizePhone(phone),
		"message": text,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/sms/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("mtn send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mtn send: status %d", resp.StatusCode)
	}
	return nil
}
