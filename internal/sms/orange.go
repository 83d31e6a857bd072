package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Stealph7/AgriConnect/internal/config"
)

const orangeDefaultBaseURL = "https://api.orange.com"

// OrangeProvider talks to the Orange SMS API. Each send fetches a fresh
// OAuth token with the client credentials, then posts the message.
type OrangeProvider struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	senderID  string
}

func NewOrangeProvider(cfg config.SMSConfig) *OrangeProvider {
	base := cfg.BaseURL
	if base == "" {
		base = orangeDefaultBaseURL
	}
	return &OrangeProvider{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(base, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		senderID:  cfg.SenderID,
	}
}

func (p *OrangeProvider) Send(ctx context.Context, phone, text string) error {
	token, err := p.token(ctx)
	if err != nil {
		return fmt.Errorf("orange token: %w", err)
	}

	sender := "tel:+" + p.senderID
	body := map[string]any{
		"outboundSMSMessageRequest": map[string]any{
			"address":       "tel:+" + normalizePhone(phone),
			"senderAddress": sender,
			"outboundSMSTextMessage": map[string]string{
				"message": text,
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.baseURL + "/smsmessaging/v1/outbound/" + url.PathEscape(sender) + "/requests"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("orange send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("orange send: status %d", resp.StatusCode)
	}
	return nil
}

func (p *OrangeProvider) token(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/oauth/v3/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.apiKey, p.apiSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return out.AccessToken, nil
}
