//go:build linux
// +build linux

package crowsnest

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// eventThrottle drops repeats of the same event on the same interface
const eventThrottle = 2 * time.Second

// networkMonitor implements the NetworkMonitor interface using event-driven netlink subscriptions
type networkMonitor struct {
	config        *config_manager.CrowsnestConfig
	events        chan NetworkEvent
	stopChan      chan struct{}
	wg            sync.WaitGroup
	running       bool
	mu            sync.RWMutex
	lastEventTime map[string]time.Time
	eventMutex    sync.Mutex
}

// NewNetworkMonitor creates a new event-driven network monitor
func NewNetworkMonitor(config *config_manager.CrowsnestConfig) NetworkMonitor {
	return &networkMonitor{
		config:        config,
		events:        make(chan NetworkEvent, 100),
		stopChan:      make(chan struct{}),
		lastEventTime: make(map[string]time.Time),
	}
}

// Start begins monitoring network changes using netlink subscriptions
func (nm *networkMonitor) Start() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return fmt.Errorf("network monitor is already running")
	}

	linkUpdates := make(chan netlink.LinkUpdate)
	linkDone := make(chan struct{})
	if err := netlink.LinkSubscribe(linkUpdates, linkDone); err != nil {
		return fmt.Errorf("failed to subscribe to link updates: %w", err)
	}

	addrUpdates := make(chan netlink.AddrUpdate)
	addrDone := make(chan struct{})
	if err := netlink.AddrSubscribe(addrUpdates, addrDone); err != nil {
		close(linkDone)
		return fmt.Errorf("failed to subscribe to address updates: %w", err)
	}

	logger.Info("Starting event-driven network monitor")

	nm.running = true
	nm.wg.Add(2)
	go nm.monitorLinkChanges(linkUpdates, linkDone)
	go nm.monitorAddressChanges(addrUpdates, addrDone)

	return nil
}

// Stop stops the network monitor
func (nm *networkMonitor) Stop() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.running {
		return nil
	}

	logger.Info("Stopping network monitor")

	close(nm.stopChan)
	nm.running = false
	nm.wg.Wait()
	close(nm.events)

	return nil
}

// Events returns the channel for network events
func (nm *networkMonitor) Events() <-chan NetworkEvent {
	return nm.events
}

func (nm *networkMonitor) monitorLinkChanges(updates <-chan netlink.LinkUpdate, done chan struct{}) {
	defer nm.wg.Done()

	for {
		select {
		case <-nm.stopChan:
			close(done)
			return
		case update, ok := <-updates:
			if !ok {
				logger.Warn("Link update subscription closed")
				return
			}
			nm.handleLinkUpdate(update)
		}
	}
}

func (nm *networkMonitor) monitorAddressChanges(updates <-chan netlink.AddrUpdate, done chan struct{}) {
	defer nm.wg.Done()

	for {
		select {
		case <-nm.stopChan:
			close(done)
			return
		case update, ok := <-updates:
			if !ok {
				logger.Warn("Address update subscription closed")
				return
			}
			nm.handleAddressUpdate(update)
		}
	}
}

func (nm *networkMonitor) handleLinkUpdate(update netlink.LinkUpdate) {
	if update.Link == nil || update.Link.Attrs() == nil {
		return
	}

	info := linkInfo(update.Link)
	if !shouldMonitorInterface(nm.config, info.Name) {
		return
	}

	eventType := EventInterfaceDown
	var gatewayIP string
	if info.IsUp {
		eventType = EventInterfaceUp
		gatewayIP = nm.getGatewayForInterface(info.Name)
	}

	nm.sendEvent(NetworkEvent{
		Type:          eventType,
		InterfaceName: info.Name,
		InterfaceInfo: info,
		GatewayIP:     gatewayIP,
		Timestamp:     time.Now(),
	})
}

func (nm *networkMonitor) handleAddressUpdate(update netlink.AddrUpdate) {
	link, err := netlink.LinkByIndex(update.LinkIndex)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"index": update.LinkIndex,
			"error": err,
		}).Debug("Failed to get link for address update")
		return
	}

	info := linkInfo(link)
	if !shouldMonitorInterface(nm.config, info.Name) {
		return
	}

	eventType := EventAddressAdded
	if !update.NewAddr {
		eventType = EventAddressDeleted
	}

	logger.WithFields(logrus.Fields{
		"interface": info.Name,
		"address":   update.LinkAddress.IP.String(),
		"added":     update.NewAddr,
	}).Debug("Interface address changed")

	nm.sendEvent(NetworkEvent{
		Type:          eventType,
		InterfaceName: info.Name,
		InterfaceInfo: info,
		GatewayIP:     nm.getGatewayForInterface(info.Name),
		Timestamp:     time.Now(),
	})
}

func linkInfo(link netlink.Link) *InterfaceInfo {
	attrs := link.Attrs()
	info := &InterfaceInfo{
		Name:           attrs.Name,
		MacAddress:     attrs.HardwareAddr.String(),
		IsUp:           attrs.Flags&net.FlagUp != 0,
		IsLoopback:     attrs.Flags&net.FlagLoopback != 0,
		IsPointToPoint: attrs.Flags&net.FlagPointToPoint != 0,
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err == nil {
		for _, addr := range addrs {
			info.IPAddresses = append(info.IPAddresses, addr.IP.String())
		}
	}
	return info
}

// getGatewayForInterface gets the gateway IP for an interface
func (nm *networkMonitor) getGatewayForInterface(interfaceName string) string {
	log := logger.WithField("interface", interfaceName)

	link, err := netlink.LinkByName(interfaceName)
	if err != nil {
		log.WithError(err).Debug("Failed to get link")
		return ""
	}

	// Default route on this interface
	routes, err := netlink.RouteList(link, netlink.FAMILY_ALL)
	if err != nil {
		log.WithError(err).Debug("Failed to list routes")
	} else {
		for _, route := range routes {
			if route.Dst == nil && route.Gw != nil {
				return route.Gw.String()
			}
		}
	}

	// Default route in the main table pointing out of this interface
	allRoutes, err := netlink.RouteList(nil, netlink.FAMILY_ALL)
	if err != nil {
		log.WithError(err).Debug("Failed to list global routes")
	} else {
		for _, route := range allRoutes {
			if route.Dst == nil && route.Gw != nil && route.LinkIndex == link.Attrs().Index {
				return route.Gw.String()
			}
		}
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		log.WithError(err).Debug("Failed to list addresses")
		return ""
	}

	for _, addr := range addrs {
		if addr.IP.IsLoopback() {
			continue
		}
		if gatewayIP := inferGatewayFromIP(addr.IP, addr.Mask); gatewayIP != "" {
			log.WithField("gateway", gatewayIP).Debug("Inferred gateway from interface address")
			return gatewayIP
		}
	}

	return ""
}

// GetCurrentInterfaces returns current network interface information
func (nm *networkMonitor) GetCurrentInterfaces() ([]*InterfaceInfo, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list network links: %w", err)
	}

	var interfaces []*InterfaceInfo
	for _, link := range links {
		if link.Attrs() == nil || !shouldMonitorInterface(nm.config, link.Attrs().Name) {
			continue
		}
		interfaces = append(interfaces, linkInfo(link))
	}

	return interfaces, nil
}

// GetGatewayForInterface gets the gateway IP for an interface
func (nm *networkMonitor) GetGatewayForInterface(interfaceName string) string {
	return nm.getGatewayForInterface(interfaceName)
}

// sendEvent forwards an event unless the same one was sent very recently
func (nm *networkMonitor) sendEvent(event NetworkEvent) {
	eventKey := fmt.Sprintf("%s:%d", event.InterfaceName, event.Type)

	nm.eventMutex.Lock()
	now := time.Now()
	if last, exists := nm.lastEventTime[eventKey]; exists && now.Sub(last) < eventThrottle {
		nm.eventMutex.Unlock()
		return
	}
	nm.lastEventTime[eventKey] = now
	nm.eventMutex.Unlock()

	select {
	case nm.events <- event:
	default:
		logger.WithField("interface", event.InterfaceName).Warn("Network event channel full, dropping event")
	}
}
