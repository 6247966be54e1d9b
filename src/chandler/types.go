package chandler

import (
	"context"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/merchant"
	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/nbd-wtf/go-nostr"
)

// UpstreamTollgate represents a discovered upstream TollGate
type UpstreamTollgate struct {
	// Network interface information
	InterfaceName string // e.g., "eth0", "wlan0"
	MacAddress    string // MAC address of local interface
	GatewayIP     string // IP address of the upstream gateway

	// TollGate advertisement information
	Advertisement *nostr.Event // Complete TollGate advertisement event (kind 10021)

	// Discovery metadata
	DiscoveredAt time.Time
}

// ChandlerInterface is what crowsnest drives when the network changes
type ChandlerInterface interface {
	// HandleUpstreamTollgate is called when Crowsnest discovers a new upstream TollGate
	HandleUpstreamTollgate(upstream *UpstreamTollgate) error

	// HandleDisconnect is called when a network interface goes down
	HandleDisconnect(interfaceName string) error
}

// GatewayClient performs the HTTP exchanges with a gateway
type GatewayClient interface {
	FetchAdvertisement(ctx context.Context, gatewayAddress string) (*tollgate_protocol.Advertisement, *nostr.Event, error)
	FetchDeviceIdentifier(ctx context.Context, gatewayAddress string) (tollgate_protocol.DeviceIdentifier, error)
	SendPayment(ctx context.Context, gatewayAddress string, payment *nostr.Event, metric tollgate_protocol.Metric) (*tollgate_protocol.SessionResponse, error)
}

// PaymentSelector chooses how to pay and mints the tokens
type PaymentSelector interface {
	Pay(options []tollgate_protocol.PricingOption, steps uint64) (tollgate_protocol.PricingOption, *merchant.PaymentToken, error)
	CreatePaymentToken(option tollgate_protocol.PricingOption, steps uint64) (*merchant.PaymentToken, error)
	Refund(token *merchant.PaymentToken) error
}

// StateStore persists the session registry snapshot
type StateStore interface {
	SaveSessionState(data []byte) error
}

// ByteCounter reads cumulative RX+TX byte counters for an interface
type ByteCounter interface {
	InterfaceBytes(interfaceName string) (uint64, error)
}

// ChandlerError represents errors specific to the chandler module
type ChandlerError struct {
	Type           ErrorType
	Code           string
	Message        string
	Cause          error
	UpstreamPubkey string
	Context        map[string]interface{}
}

// ErrorType represents the type of chandler error
type ErrorType int

const (
	ErrorTypeDiscovery ErrorType = iota
	ErrorTypeTrust
	ErrorTypeBudget
	ErrorTypePayment
	ErrorTypeSession
)

func (e *ChandlerError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ChandlerError) Unwrap() error {
	return e.Cause
}
