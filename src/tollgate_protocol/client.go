package tollgate_protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "tollgate_protocol")

const (
	DefaultGatewayPort    = 2121
	DefaultRequestTimeout = 10 * time.Second

	// maxResponseSize caps how much of a gateway response is read
	maxResponseSize = 1024 * 1024
	userAgent       = "TollGate-Client/1.0"
)

// Client talks to a TollGate over HTTP. Every call is a single attempt
// bounded by the client timeout; retrying is left to the caller.
type Client struct {
	http *http.Client
}

// NewClient creates a gateway client. A zero timeout uses DefaultRequestTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			// Don't follow redirects, captive portals love them
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// GatewayURL builds the base URL for a gateway IP, e.g. http://192.168.1.1:2121
func GatewayURL(gatewayIP string) string {
	if strings.HasPrefix(gatewayIP, "http://") || strings.HasPrefix(gatewayIP, "https://") {
		return strings.TrimRight(gatewayIP, "/")
	}
	return fmt.Sprintf("http://%s:%d", gatewayIP, DefaultGatewayPort)
}

// FetchAdvertisement retrieves, verifies and validates a gateway's advertisement.
func (c *Client) FetchAdvertisement(ctx context.Context, gatewayAddress string) (*Advertisement, *nostr.Event, error) {
	status, body, err := c.do(ctx, http.MethodGet, GatewayURL(gatewayAddress)+"/", nil, "application/json")
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK {
		return nil, nil, protocolError("gateway-not-found", "gateway not found: %s returned status %d", gatewayAddress, status)
	}

	event, err := ParseEventFromBytes(body)
	if err != nil {
		return nil, nil, err
	}
	if err := VerifyEventSignature(event); err != nil {
		return nil, nil, err
	}

	ad, err := ExtractAdvertisement(event)
	if err != nil {
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"gateway": gatewayAddress,
		"metric":  ad.Metric,
		"options": len(ad.PricingOptions),
	}).Debug("Fetched advertisement")

	return ad, event, nil
}

// FetchDeviceIdentifier asks the gateway how it sees this device (GET /whoami).
func (c *Client) FetchDeviceIdentifier(ctx context.Context, gatewayAddress string) (DeviceIdentifier, error) {
	status, body, err := c.do(ctx, http.MethodGet, GatewayURL(gatewayAddress)+"/whoami", nil, "text/plain")
	if err != nil {
		return DeviceIdentifier{}, err
	}
	if status != http.StatusOK {
		return DeviceIdentifier{}, protocolError("whoami-status", "whoami returned status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return ParseDeviceIdentifier(string(body))
}

// SendPayment posts a signed payment event and returns the gateway's session.
// 200 yields a SessionResponse signed by the gateway the payment targets,
// 402 yields a payment-rejected error with the gateway's reason, anything
// else a protocol error carrying status and body.
func (c *Client) SendPayment(ctx context.Context, gatewayAddress string, payment *nostr.Event, metric Metric) (*SessionResponse, error) {
	if payment == nil || payment.Kind != PaymentKind {
		return nil, protocolError("wrong-kind", "refusing to send a non-payment event")
	}

	payload, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment event: %w", err)
	}

	logger.WithField("gateway", gatewayAddress).Info("Sending payment to gateway")

	status, body, err := c.do(ctx, http.MethodPost, GatewayURL(gatewayAddress)+"/", payload, "application/json")
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusPaymentRequired:
		return nil, paymentRejected(rejectionReason(body))
	default:
		return nil, protocolError("unexpected-status", "gateway returned status %d: %s", status, strings.TrimSpace(string(body)))
	}

	event, err := ParseEventFromBytes(body)
	if err != nil {
		return nil, err
	}

	msg, err := Decode(event, metric)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*SessionResponse)
	if !ok {
		return nil, protocolError("wrong-kind", "expected session event (kind %d), got %d", SessionKind, event.Kind)
	}

	if target := paymentTarget(payment); target != "" && resp.GatewayIdentity != target {
		return nil, protocolError("wrong-signer", "session signed by %s, payment was for %s", resp.GatewayIdentity, target)
	}

	return resp, nil
}

// rejectionReason prefers the content of a notice event, falling back to the raw body.
func rejectionReason(body []byte) string {
	var notice nostr.Event
	if err := json.Unmarshal(body, &notice); err == nil && notice.Kind == NoticeKind {
		if notice.Content != "" {
			return notice.Content
		}
	}

	reason := strings.TrimSpace(string(body))
	if reason == "" {
		return "payment required"
	}
	return reason
}

func paymentTarget(payment *nostr.Event) string {
	for _, tag := range payment.Tags {
		if len(tag) >= 2 && tag[0] == "p" {
			return tag[1]
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte, accept string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, networkUnreachable(fmt.Sprintf("%s %s failed", method, url), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return 0, nil, networkUnreachable("failed to read response body", err)
	}
	if len(body) > maxResponseSize {
		return 0, nil, protocolError("response-too-large", "response from %s exceeds %d bytes", url, maxResponseSize)
	}

	return resp.StatusCode, body, nil
}
