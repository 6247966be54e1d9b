//go:build !linux
// +build !linux

package crowsnest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
)

var errNetlinkUnsupported = errors.New("netlink is only available on linux")

// stubNetworkMonitor never reports events; netlink only exists on linux
type stubNetworkMonitor struct {
	config  *config_manager.CrowsnestConfig
	events  chan NetworkEvent
	running bool
	mu      sync.Mutex
}

// NewNetworkMonitor creates a stub network monitor for non-Linux systems
func NewNetworkMonitor(config *config_manager.CrowsnestConfig) NetworkMonitor {
	logger.Warn("Using stub network monitor, netlink functionality only available on Linux")
	return &stubNetworkMonitor{
		config: config,
		events: make(chan NetworkEvent),
	}
}

func (nm *stubNetworkMonitor) Start() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return fmt.Errorf("stub network monitor is already running")
	}
	nm.running = true
	return nil
}

func (nm *stubNetworkMonitor) Stop() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.running {
		return nil
	}
	nm.running = false
	close(nm.events)
	return nil
}

func (nm *stubNetworkMonitor) Events() <-chan NetworkEvent {
	return nm.events
}

func (nm *stubNetworkMonitor) GetCurrentInterfaces() ([]*InterfaceInfo, error) {
	return []*InterfaceInfo{}, nil
}

func (nm *stubNetworkMonitor) GetGatewayForInterface(interfaceName string) string {
	return ""
}

// TrafficMeter is unavailable off linux; every read fails
type TrafficMeter struct{}

func NewTrafficMeter() *TrafficMeter {
	return &TrafficMeter{}
}

func (m *TrafficMeter) InterfaceBytes(interfaceName string) (uint64, error) {
	return 0, errNetlinkUnsupported
}
