package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/billing"
	"github.com/sethmwebi/medrin-jobs-backend/app/config"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	maxBodyBytes = 1 << 20
)

// Mpesa talks to the Safaricom Daraja API. It implements
// billing.MobileMoneyGateway. Tokens are fetched per call.
type Mpesa struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	http           *http.Client
}

func NewMpesa(cfg config.MpesaConfig) *Mpesa {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mpesa{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		http:           &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// darajaError is the body Daraja returns on 4xx/5xx.
type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (m *Mpesa) AccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.consumerKey, m.consumerSecret)

	var tok tokenResponse
	if err := m.do(req, &tok); err != nil {
		return "", fmt.Errorf("mpesa access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("mpesa access token: empty token")
	}
	return tok.AccessToken, nil
}

func (m *Mpesa) SubmitSTKPush(ctx context.Context, token string, envelope billing.STKPushRequest) (billing.STKPushResponse, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return billing.STKPushResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return billing.STKPushResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp billing.STKPushResponse
	if err := m.do(req, &resp); err != nil {
		return billing.STKPushResponse{}, fmt.Errorf("mpesa stk push: %w", err)
	}
	return resp, nil
}

func (m *Mpesa) do(req *http.Request, out any) error {
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var de darajaError
		if json.Unmarshal(raw, &de) == nil && de.ErrorMessage != "" {
			return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, de.ErrorMessage, de.ErrorCode)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
