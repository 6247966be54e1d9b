package tollgate_protocol

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
)

// Message is one of the three TollGate message types:
// *Advertisement, *PaymentRequest or *SessionResponse.
type Message interface {
	messageKind() int
}

func (*Advertisement) messageKind() int   { return AdvertisementKind }
func (*PaymentRequest) messageKind() int  { return PaymentKind }
func (*SessionResponse) messageKind() int { return SessionKind }

// Decode checks the event signature and decodes it into the variant matching
// its kind. metric is used to derive session expiry for session responses.
// Any other kind is rejected.
func Decode(event *nostr.Event, metric Metric) (Message, error) {
	if err := VerifyEventSignature(event); err != nil {
		return nil, err
	}

	switch event.Kind {
	case AdvertisementKind:
		return ExtractAdvertisement(event)
	case PaymentKind:
		return ParsePaymentRequest(event)
	case SessionKind:
		return ParseSessionResponse(event, metric)
	default:
		return nil, protocolError("unknown-kind", "unsupported event kind %d", event.Kind)
	}
}

// VerifyEventSignature checks that the event is properly signed by its pubkey
func VerifyEventSignature(event *nostr.Event) error {
	if event == nil {
		return protocolError("nil-event", "event is nil")
	}

	ok, err := event.CheckSignature()
	if err != nil {
		return &Error{Type: ErrorTypeProtocol, Code: "bad-signature", Message: "signature verification failed", Cause: err}
	}
	if !ok {
		return protocolError("bad-signature", "invalid signature on event %s", event.ID)
	}

	return nil
}

// ParseEventFromBytes parses a nostr event from raw JSON
func ParseEventFromBytes(data []byte) (*nostr.Event, error) {
	var event nostr.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, &Error{Type: ErrorTypeProtocol, Code: "malformed-event", Message: "failed to parse nostr event", Cause: err}
	}
	return &event, nil
}

func requireKind(event *nostr.Event, kind int) *Error {
	if event == nil {
		return protocolError("nil-event", "event is nil")
	}
	if event.Kind != kind {
		return protocolError("wrong-kind", "invalid event kind: %d, expected %d", event.Kind, kind)
	}
	return nil
}
