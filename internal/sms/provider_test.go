package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stealph7/AgriConnect/internal/config"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"07080910", "22507080910"},
		{"+225 07 08 09 10", "22507080910"},
		{"225-07-08-09-10", "22507080910"},
		{"0708091011", "0708091011"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizePhone(tc.in), "input %q", tc.in)
	}
}

func TestNewProviderSelection(t *testing.T) {
	for _, name := range []string{"orange", "mtn", "moov"} {
		p, err := NewProvider(config.SMSConfig{Provider: name})
		require.NoError(t, err, name)
		require.NotNil(t, p, name)
	}

	_, err := NewProvider(config.SMSConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOrangeProviderSend(t *testing.T) {
	var tokenRequests, sendRequests int
	var sentBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v3/token":
			tokenRequests++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		default:
			sendRequests++
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &sentBody))
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	p := NewOrangeProvider(config.SMSConfig{
		APIKey:    "client-id",
		APISecret: "client-secret",
		SenderID:  "22500000000",
		BaseURL:   srv.URL,
	})

	err := p.Send(context.Background(), "07 08 09 10", "Votre commande est confirmée")
	require.NoError(t, err)
	assert.Equal(t, 1, tokenRequests)
	assert.Equal(t, 1, sendRequests)

	msg := sentBody["outboundSMSMessageRequest"].(map[string]any)
	assert.Equal(t, "tel:+22507080910", msg["address"])
	assert.Equal(t, "tel:+22500000000", msg["senderAddress"])
}

func TestOrangeProviderTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOrangeProvider(config.SMSConfig{BaseURL: srv.URL})
	err := p.Send(context.Background(), "07080910", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestMTNProviderSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sms/send", r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewMTNProvider(config.SMSConfig{APIKey: "api-key", SenderID: "AgriConnect", BaseURL: srv.URL})
	require.NoError(t, p.Send(context.Background(), "05060708", "stock faible"))

	assert.Equal(t, "AgriConnect", got["from"])
	assert.Equal(t, "22505060708", got["to"])
	assert.Equal(t, "stock faible", got["message"])
}

func TestMoovProviderSendFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("X-API-Key"))
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewMoovProvider(config.SMSConfig{APIKey: "api-key", SenderID: "AgriConnect", BaseURL: srv.URL})
	err := p.Send(context.Background(), "01020304", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
