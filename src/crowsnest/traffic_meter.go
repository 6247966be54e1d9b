//go:build linux
// +build linux

package crowsnest

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// TrafficMeter reads cumulative interface byte counters from the kernel
type TrafficMeter struct{}

func NewTrafficMeter() *TrafficMeter {
	return &TrafficMeter{}
}

// InterfaceBytes returns received plus transmitted bytes on an interface
func (m *TrafficMeter) InterfaceBytes(interfaceName string) (uint64, error) {
	link, err := netlink.LinkByName(interfaceName)
	if err != nil {
		return 0, fmt.Errorf("failed to get link %s: %w", interfaceName, err)
	}

	stats := link.Attrs().Statistics
	if stats == nil {
		return 0, fmt.Errorf("no statistics for interface %s", interfaceName)
	}
	return stats.RxBytes + stats.TxBytes, nil
}
