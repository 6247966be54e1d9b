package tollgate_protocol

import (
	"errors"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPaymentRequest(t *testing.T) {
	gateway := testKeys(t)
	session := testKeys(t)
	device := DeviceIdentifier{Type: "mac", Value: "AA:BB:CC:DD:EE:FF"}

	event, err := BuildPaymentRequest(PaymentRequest{
		GatewayIdentity:  gateway.PublicKey,
		DeviceIdentifier: device,
		PaymentToken:     "cashuBtoken",
		Steps:            300,
	}, session)
	require.NoError(t, err)

	assert.Equal(t, PaymentKind, event.Kind)
	assert.Equal(t, "", event.Content)
	assert.Equal(t, session.PublicKey, event.PubKey, "payment must be signed with the session keys")
	assert.Equal(t, nostr.Tags{
		{"p", gateway.PublicKey},
		{"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"},
		{"payment", "cashuBtoken"},
	}, event.Tags)

	ok, err := event.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)

	parsed, err := ParsePaymentRequest(event)
	require.NoError(t, err)
	assert.Equal(t, gateway.PublicKey, parsed.GatewayIdentity)
	assert.Equal(t, device, parsed.DeviceIdentifier)
	assert.Equal(t, "cashuBtoken", parsed.PaymentToken)
	assert.Equal(t, session.PublicKey, parsed.CustomerIdentity)
}

func TestBuildPaymentRequestRequiresFields(t *testing.T) {
	session := testKeys(t)
	base := PaymentRequest{
		GatewayIdentity:  "gw",
		DeviceIdentifier: DeviceIdentifier{Type: "mac", Value: "AA:BB:CC:DD:EE:FF"},
		PaymentToken:     "token",
	}

	_, err := BuildPaymentRequest(base, KeyPair{})
	assert.Error(t, err)

	noToken := base
	noToken.PaymentToken = ""
	_, err = BuildPaymentRequest(noToken, session)
	assert.Error(t, err)

	noDevice := base
	noDevice.DeviceIdentifier = DeviceIdentifier{}
	_, err = BuildPaymentRequest(noDevice, session)
	assert.Error(t, err)
}

func TestParsePaymentRequestMissingToken(t *testing.T) {
	event := signedEvent(t, testKeys(t), PaymentKind, nostr.Tags{
		{"p", "gw"},
		{"device-identifier", "mac", "AA:BB:CC:DD:EE:FF"},
	}, "")

	_, err := ParsePaymentRequest(event)
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestParseDeviceIdentifier(t *testing.T) {
	device, err := ParseDeviceIdentifier("mac=aa:bb:cc:dd:ee:ff\n")
	require.NoError(t, err)
	assert.Equal(t, DeviceIdentifier{Type: "mac", Value: "AA:BB:CC:DD:EE:FF"}, device)
	assert.Equal(t, "mac=AA:BB:CC:DD:EE:FF", device.String())

	device, err = ParseDeviceIdentifier("ip=10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "ip", device.Type)

	for _, body := range []string{"AA:BB:CC:DD:EE:FF", "", "mac=", "=value", "mac=not-a-mac"} {
		_, err := ParseDeviceIdentifier(body)
		assert.True(t, errors.Is(err, ErrProtocol), "body %q", body)
	}
}

func TestGenerateKeyPairIsFresh(t *testing.T) {
	a := testKeys(t)
	b := testKeys(t)
	assert.NotEqual(t, a.PrivateKey, b.PrivateKey)
	assert.Len(t, a.PublicKey, 64)
}
