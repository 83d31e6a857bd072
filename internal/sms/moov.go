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

const moovDefaultBaseURL = "https://api.moov.ci/v1"

// MoovProvider talks to the Moov messaging API with an API key header.
type MoovProvider struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	senderID string
}

func NewMoovProvider(cfg config.SMSConfig) *MoovProvider {
	base := cfg.BaseURL
	if base == "" {
		base = moovDefaultBaseURL
	}
	return &MoovProvider{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(base, "/"),
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
	}
}

func (p *MoovProvider) Send(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(map[string]string{
		"sender":    p.senderID,
		"recipient": normalizePhone(phone),
		"content":   text,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("moov send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("moov send: status %d", resp.StatusCode)
	}
	return nil
}
