package tollgate_protocol

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// PaymentRequest is what a customer sends to buy allotment.
// Steps is kept for bookkeeping only; the gateway derives the purchase from the token value.
type PaymentRequest struct {
	GatewayIdentity  string           `json:"gateway_identity"`
	DeviceIdentifier DeviceIdentifier `json:"device_identifier"`
	PaymentToken     string           `json:"payment_token"`
	Steps            uint64           `json:"steps"`
	CustomerIdentity string           `json:"customer_identity,omitempty"`
}

// BuildPaymentRequest creates a kind 21000 payment event signed with the
// session's own keys. The event carries the target gateway, the device
// identifier and the payment token, and has no content.
func BuildPaymentRequest(req PaymentRequest, sessionKeys KeyPair) (*nostr.Event, error) {
	if sessionKeys.IsZero() {
		return nil, fmt.Errorf("session keys are required to sign a payment")
	}
	if req.GatewayIdentity == "" {
		return nil, fmt.Errorf("gateway identity is required")
	}
	if req.DeviceIdentifier.IsZero() {
		return nil, fmt.Errorf("device identifier is required")
	}
	if req.PaymentToken == "" {
		return nil, fmt.Errorf("payment token is required")
	}

	event := &nostr.Event{
		Kind:      PaymentKind,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"p", req.GatewayIdentity},
			deviceIdentifierTag(req.DeviceIdentifier),
			{"payment", req.PaymentToken},
		},
		Content: "",
	}

	if err := event.Sign(sessionKeys.PrivateKey); err != nil {
		return nil, fmt.Errorf("failed to sign payment event: %w", err)
	}

	return event, nil
}

// ParsePaymentRequest reads a payment event back into a PaymentRequest
func ParsePaymentRequest(event *nostr.Event) (*PaymentRequest, error) {
	if err := requireKind(event, PaymentKind); err != nil {
		return nil, err
	}

	req := &PaymentRequest{CustomerIdentity: event.PubKey}
	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "p":
			req.GatewayIdentity = tag[1]
		case "payment":
			req.PaymentToken = tag[1]
		case "device-identifier":
			if device, ok := parseDeviceIdentifierTag(tag); ok {
				req.DeviceIdentifier = device
			}
		}
	}

	if req.PaymentToken == "" {
		return nil, protocolError("missing-payment", "no payment tag found in event")
	}
	if req.DeviceIdentifier.IsZero() {
		return nil, protocolError("missing-device-identifier", "no device-identifier tag found in event")
	}

	return req, nil
}
