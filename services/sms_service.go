package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DeliveryOutcome reports the result of a single send attempt.
type DeliveryOutcome struct {
	OK          bool
	ProviderRef string
}

// NotificationGateway sends a text message to a phone number. One attempt
// per call; the coordinator never retries internally (duplicate SMS risk),
// recovery is re-invoking the whole reservation.
type NotificationGateway interface {
	Send(ctx context.Context, toE164, body string) (DeliveryOutcome, error)
}

// TwilioGateway delivers через Twilio Messages API (Basic Auth + form POST,
// SDK не нужен).
type TwilioGateway struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

type TwilioGatewayConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL overrides the Twilio API host, used in tests.
	BaseURL string
}

func NewTwilioGateway(cfg TwilioGatewayConfig, logger *slog.Logger) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, fmt.Errorf("invalid Twilio configuration: account sid, auth token and from number are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioGateway{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

func (g *TwilioGateway) Send(ctx context.Context, toE164, body string) (DeliveryOutcome, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)

	form := url.Values{}
	form.Set("To", toE164)
	form.Set("From", g.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("sms send rejected",
			slog.Int("status", resp.StatusCode), slog.String("to", toE164))
		return DeliveryOutcome{}, fmt.Errorf("%w: provider returned status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	var parsed struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		// Сообщение принято, но ответ не разобрали — доставка подтверждена без ссылки.
		return DeliveryOutcome{OK: true}, nil
	}
	return DeliveryOutcome{OK: true, ProviderRef: parsed.Sid}, nil
}
