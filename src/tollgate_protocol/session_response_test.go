package tollgate_protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionTags(customer string) nostr.Tags {
	return nostr.Tags{
		{"p", customer},
		{"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"},
		{"allotment", "300000"},
		{"metric", "milliseconds"},
	}
}

func TestParseSessionResponse(t *testing.T) {
	gateway := testKeys(t)
	event := signedEvent(t, gateway, SessionKind, sessionTags("customer"), "")

	resp, err := ParseSessionResponse(event, MetricTime)
	require.NoError(t, err)

	assert.Equal(t, event.ID, resp.SessionID)
	assert.Equal(t, uint64(300000), resp.Allotment)
	assert.Equal(t, DeviceIdentifier{Type: "mac", Value: "AA:BB:CC:DD:EE:FF"}, resp.DeviceIdentifier)
	assert.Equal(t, gateway.PublicKey, resp.GatewayIdentity)
	assert.Equal(t, "customer", resp.CustomerIdentity)
	assert.Equal(t, event.CreatedAt.Time().Add(5*time.Minute), resp.SessionExpiry)
}

func TestParseSessionResponseDataMetric(t *testing.T) {
	tags := nostr.Tags{
		{"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"},
		{"allotment", "10485760"},
		{"metric", "bytes"},
	}
	event := signedEvent(t, testKeys(t), SessionKind, tags, "")

	resp, err := ParseSessionResponse(event, MetricData)
	require.NoError(t, err)
	assert.Equal(t, event.CreatedAt.Time().Add(DataSessionLifetime), resp.SessionExpiry)
}

func TestParseSessionResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		kind int
		tags nostr.Tags
		code string
	}{
		{"wrong kind", AdvertisementKind, sessionTags("c"), "wrong-kind"},
		{"missing allotment", SessionKind, nostr.Tags{{"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"}}, "missing-allotment"},
		{"missing device", SessionKind, nostr.Tags{{"allotment", "1000"}}, "missing-device-identifier"},
		{"bad allotment", SessionKind, nostr.Tags{{"allotment", "lots"}}, "malformed-allotment"},
		{"metric mismatch", SessionKind, nostr.Tags{{"allotment", "1000"}, {"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"}, {"metric", "bytes"}}, "metric-mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := signedEvent(t, testKeys(t), tt.kind, tt.tags, "")
			_, err := ParseSessionResponse(event, MetricTime)
			require.Error(t, err)
			assert.True(t, errors.Is(err, &Error{Type: ErrorTypeProtocol, Code: tt.code}), "got %v", err)
		})
	}
}

func TestParseSessionResponseZeroAllotmentIsNotMissing(t *testing.T) {
	tags := nostr.Tags{{"allotment", "0"}, {"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"}}
	event := signedEvent(t, testKeys(t), SessionKind, tags, "")

	resp, err := ParseSessionResponse(event, MetricTime)
	require.NoError(t, err)
	assert.Zero(t, resp.Allotment)
}
