package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultPayPalAPIBaseURL = "https://api-m.paypal.com"
	paypalVerifyPath        = "/v1/notifications/verify-webhook-signature"
	paypalTokenPath         = "/v1/oauth2/token"
)

const (
	PayPalCaptureCompleted       = "PAYMENT.CAPTURE.COMPLETED"
	PayPalCaptureDenied          = "PAYMENT.CAPTURE.DENIED"
	PayPalCaptureDeclined        = "PAYMENT.CAPTURE.DECLINED"
	PayPalOrderCompleted         = "CHECKOUT.ORDER.COMPLETED"
	PayPalApprovalReversed       = "CHECKOUT.PAYMENT-APPROVAL.REVERSED"
	PayPalSubscriptionActivated  = "BILLING.SUBSCRIPTION.ACTIVATED"
	PayPalSubscriptionCancelled  = "BILLING.SUBSCRIPTION.CANCELLED"
	paypalVerificationStatusGood = "SUCCESS"
)

var paypalSignatureHeaders = []string{
	"PAYPAL-AUTH-ALGO",
	"PAYPAL-CERT-URL",
	"PAYPAL-TRANSMISSION-ID",
	"PAYPAL-TRANSMISSION-SIG",
	"PAYPAL-TRANSMISSION-TIME",
}

// PayPalAdapter handles PayPal Orders v2 and Subscriptions webhooks.
// Signatures are checked through PayPal's verify-webhook-signature API.
type PayPalAdapter struct {
	WebhookID  string
	APIBaseURL string
	HTTPClient *http.Client
}

func NewPayPalAdapterFromEnv() *PayPalAdapter {
	base := strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalAPIBaseURL)), "/")
	return NewPayPalAdapter(
		base,
		strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		strings.TrimSpace(env.GetEnv("PAYPAL_WEBHOOK_ID", "")),
	)
}

// NewPayPalAdapter builds an adapter whose HTTP client authenticates with
// OAuth2 client credentials against baseURL.
func NewPayPalAdapter(baseURL, clientID, clientSecret, webhookID string) *PayPalAdapter {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + paypalTokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 15 * time.Second})
	client := cfg.Client(tokenCtx)
	client.Timeout = 15 * time.Second

	return &PayPalAdapter{
		WebhookID:  webhookID,
		APIBaseURL: baseURL,
		HTTPClient: client,
	}
}

func (a *PayPalAdapter) Provider() string { return models.ProviderPayPal }

func (a *PayPalAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(a.WebhookID) == "" {
		return errors.New("PAYPAL_WEBHOOK_ID is not configured")
	}
	values := make(map[string]string, len(paypalSignatureHeaders))
	for _, h := range paypalSignatureHeaders {
		v := strings.TrimSpace(headers.Get(h))
		if v == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidSignature, h)
		}
		values[h] = v
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: body is not JSON", ErrInvalidSignature)
	}

	body, err := json.Marshal(struct {
		AuthAlgo         string          `json:"auth_algo"`
		CertURL          string          `json:"cert_url"`
		TransmissionID   string          `json:"transmission_id"`
		TransmissionSig  string          `json:"transmission_sig"`
		TransmissionTime string          `json:"transmission_time"`
		WebhookID        string          `json:"webhook_id"`
		WebhookEvent     json.RawMessage `json:"webhook_event"`
	}{
		AuthAlgo:         values["PAYPAL-AUTH-ALGO"],
		CertURL:          values["PAYPAL-CERT-URL"],
		TransmissionID:   values["PAYPAL-TRANSMISSION-ID"],
		TransmissionSig:  values["PAYPAL-TRANSMISSION-SIG"],
		TransmissionTime: values["PAYPAL-TRANSMISSION-TIME"],
		WebhookID:        a.WebhookID,
		WebhookEvent:     json.RawMessage(payload),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.APIBaseURL, "/")+paypalVerifyPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return infraErr("paypal verify", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return infraErr("paypal verify", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: verify status=%d", ErrInvalidSignature, resp.StatusCode)
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return infraErr("paypal verify", err)
	}
	if !strings.EqualFold(strings.TrimSpace(out.VerificationStatus), paypalVerificationStatusGood) {
		return fmt.Errorf("%w: verification_status=%s", ErrInvalidSignature, out.VerificationStatus)
	}
	return nil
}

type paypalWebhook struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		OrderID           string `json:"order_id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		Payer struct {
			PayerID string `json:"payer_id"`
		} `json:"payer"`
		Subscriber struct {
			PayerID string `json:"payer_id"`
		} `json:"subscriber"`
	} `json:"resource"`
}

func (a *PayPalAdapter) Normalize(payload []byte, receivedAt time.Time) (PaymentEvent, error) {
	var raw paypalWebhook
	if err := json.Unmarshal(payload, &raw); err != nil {
		return PaymentEvent{}, malformed(models.ProviderPayPal, "", err)
	}
	eventType := strings.ToUpper(strings.TrimSpace(raw.EventType))
	if eventType == "" {
		return PaymentEvent{}, malformed(models.ProviderPayPal, "", errors.New("missing event_type"))
	}

	ev := PaymentEvent{
		Provider:   models.ProviderPayPal,
		EventType:  eventType,
		EventID:    strings.TrimSpace(raw.ID),
		RawPayload: payload,
		ReceivedAt: receivedAt,
	}
	res := raw.Resource
	fields := &models.PayPalPaymentFields{PayerID: strings.TrimSpace(res.Payer.PayerID)}

	switch eventType {
	case PayPalCaptureCompleted, PayPalCaptureDenied, PayPalCaptureDeclined:
		ev.Kind = EventPaymentFailed
		if eventType == PayPalCaptureCompleted {
			ev.Kind = EventPaymentCompleted
		}
		fields.CaptureID = strings.TrimSpace(res.ID)
		fields.OrderID = strings.TrimSpace(res.SupplementaryData.RelatedIDs.OrderID)
		ev.ProviderCorrelationID = fields.OrderID
	case PayPalOrderCompleted:
		ev.Kind = EventPaymentCompleted
		fields.OrderID = strings.TrimSpace(res.ID)
		ev.ProviderCorrelationID = fields.OrderID
	case PayPalApprovalReversed:
		ev.Kind = EventPaymentFailed
		fields.OrderID = firstNonEmpty(res.OrderID, res.ID)
		ev.ProviderCorrelationID = fields.OrderID
	case PayPalSubscriptionActivated, PayPalSubscriptionCancelled:
		ev.Kind = EventSubscriptionActivated
		if eventType == PayPalSubscriptionCancelled {
			ev.Kind = EventSubscriptionCancelled
		}
		fields.SubscriptionID = strings.TrimSpace(res.ID)
		fields.PayerID = firstNonEmpty(fields.PayerID, res.Subscriber.PayerID)
		ev.ProviderCorrelationID = fields.SubscriptionID
	default:
		ev.Kind = EventUnrecognized
		return ev, nil
	}

	if ev.ProviderCorrelationID == "" {
		return PaymentEvent{}, missingCorrelation(models.ProviderPayPal, eventType)
	}
	ev.Details = models.PaymentMetadata{PayPal: fields}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
