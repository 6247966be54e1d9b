package crowsnest

import (
	"context"

	"github.com/OpenTollGate/tollgate-client-go/src/chandler"
	"github.com/nbd-wtf/go-nostr"
)

// Crowsnest watches the uplinks and hands discovered TollGates to the chandler
type Crowsnest interface {
	Start() error
	Stop() error
	SetChandler(chandler chandler.ChandlerInterface)
}

// NetworkMonitor defines the interface for network monitoring
type NetworkMonitor interface {
	Start() error
	Stop() error
	Events() <-chan NetworkEvent
	GetCurrentInterfaces() ([]*InterfaceInfo, error)
	GetGatewayForInterface(interfaceName string) string
}

// TollGateProber fetches and verifies the advertisement of a gateway
type TollGateProber interface {
	ProbeGateway(ctx context.Context, interfaceName, gatewayIP string) (*nostr.Event, error)
	CancelProbesForInterface(interfaceName string)
}

// DiscoveryTracker defines the interface for tracking discovery attempts
type DiscoveryTracker interface {
	ShouldAttemptDiscovery(interfaceName, gatewayIP string) bool
	RecordDiscovery(interfaceName, gatewayIP string, result DiscoveryResult)
	ClearInterface(interfaceName string)
	Cleanup()
}
