package tollgate_protocol

import (
	"fmt"
	"strings"

	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/nbd-wtf/go-nostr"
)

// KeyPair is a customer signing identity. A fresh one is generated for every
// upstream session so payments to different gateways cannot be linked.
type KeyPair struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// GenerateKeyPair creates a new random signing identity
func GenerateKeyPair() (KeyPair, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to derive public key: %w", err)
	}
	return KeyPair{PrivateKey: sk, PublicKey: pk}, nil
}

func (k KeyPair) IsZero() bool {
	return k.PrivateKey == ""
}

// DeviceIdentifier names the customer device to the gateway, e.g. mac=AA:BB:CC:DD:EE:FF
type DeviceIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (d DeviceIdentifier) String() string {
	return d.Type + "=" + d.Value
}

func (d DeviceIdentifier) IsZero() bool {
	return d.Type == "" && d.Value == ""
}

// ParseDeviceIdentifier parses the "type=value" body served on /whoami
func ParseDeviceIdentifier(body string) (DeviceIdentifier, error) {
	body = strings.TrimSpace(body)

	idType, value, found := strings.Cut(body, "=")
	if !found {
		return DeviceIdentifier{}, protocolError("malformed-whoami", "device identifier %q is not of the form type=value", body)
	}

	idType = strings.TrimSpace(idType)
	value = strings.TrimSpace(value)
	if idType == "" || value == "" {
		return DeviceIdentifier{}, protocolError("malformed-whoami", "device identifier %q has an empty type or value", body)
	}

	if idType == "mac" {
		if !utils.ValidateMACAddress(value) {
			return DeviceIdentifier{}, protocolError("malformed-whoami", "invalid MAC address: %s", value)
		}
		value = strings.ToUpper(value)
	}

	return DeviceIdentifier{Type: idType, Value: value}, nil
}

func deviceIdentifierTag(device DeviceIdentifier) nostr.Tag {
	return nostr.Tag{"device-identifier", device.Type, device.Value}
}

// parseDeviceIdentifierTag reads a ["device-identifier", type, value] tag
func parseDeviceIdentifierTag(tag nostr.Tag) (DeviceIdentifier, bool) {
	if len(tag) < 3 || tag[0] != "device-identifier" {
		return DeviceIdentifier{}, false
	}
	value := tag[2]
	if tag[1] == "mac" {
		value = strings.ToUpper(value)
	}
	return DeviceIdentifier{Type: tag[1], Value: value}, true
}
