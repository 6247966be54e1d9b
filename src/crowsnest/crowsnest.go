package crowsnest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/chandler"
	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "crowsnest")

// crowsnest turns network events into discovered upstream TollGates
type crowsnest struct {
	config *config_manager.CrowsnestConfig

	monitor NetworkMonitor
	prober  TollGateProber
	tracker DiscoveryTracker

	chandler   chandler.ChandlerInterface
	chandlerMu sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewCrowsnest creates a crowsnest backed by the platform network monitor
func NewCrowsnest(config *config_manager.CrowsnestConfig) Crowsnest {
	return newCrowsnest(config, NewNetworkMonitor(config), NewTollGateProber(config), NewDiscoveryTracker(config))
}

func newCrowsnest(config *config_manager.CrowsnestConfig, monitor NetworkMonitor, prober TollGateProber, tracker DiscoveryTracker) *crowsnest {
	return &crowsnest{
		config:  config,
		monitor: monitor,
		prober:  prober,
		tracker: tracker,
	}
}

// SetChandler sets the receiver of discoveries and disconnects
func (c *crowsnest) SetChandler(ch chandler.ChandlerInterface) {
	c.chandlerMu.Lock()
	defer c.chandlerMu.Unlock()
	c.chandler = ch
}

func (c *crowsnest) getChandler() chandler.ChandlerInterface {
	c.chandlerMu.RLock()
	defer c.chandlerMu.RUnlock()
	return c.chandler
}

// Start begins monitoring and probes the interfaces that are already up
func (c *crowsnest) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return &CrowsnestError{Type: ErrorTypeIntegration, Code: "already-running", Message: "crowsnest is already running"}
	}

	if err := c.monitor.Start(); err != nil {
		return &CrowsnestError{Type: ErrorTypeNetwork, Code: "monitor-start", Message: "failed to start network monitor", Cause: err}
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true

	c.wg.Add(1)
	go c.eventLoop()

	c.scanExistingInterfaces()

	logger.Info("Crowsnest started")
	return nil
}

// Stop cancels in-flight probes and waits for the event loop to finish
func (c *crowsnest) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	c.cancel()
	err := c.monitor.Stop()
	c.wg.Wait()
	c.tracker.Cleanup()
	c.running = false

	logger.Info("Crowsnest stopped")
	return err
}

func (c *crowsnest) eventLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-c.monitor.Events():
			if !ok {
				return
			}
			c.handleNetworkEvent(event)
		}
	}
}

// scanExistingInterfaces emits synthetic up events for uplinks that were
// already configured before the monitor subscribed
func (c *crowsnest) scanExistingInterfaces() {
	interfaces, err := c.monitor.GetCurrentInterfaces()
	if err != nil {
		logger.WithError(err).Warn("Failed to list current interfaces")
		return
	}

	for _, info := range interfaces {
		if !info.IsUp || info.IsLoopback {
			continue
		}
		c.handleNetworkEvent(NetworkEvent{
			Type:          EventInterfaceUp,
			InterfaceName: info.Name,
			InterfaceInfo: info,
			GatewayIP:     c.monitor.GetGatewayForInterface(info.Name),
			Timestamp:     time.Now(),
		})
	}
}

func (c *crowsnest) handleNetworkEvent(event NetworkEvent) {
	log := logger.WithFields(logrus.Fields{
		"event":     event.Type.String(),
		"interface": event.InterfaceName,
		"gateway":   event.GatewayIP,
	})
	log.Debug("Network event")

	switch event.Type {
	case EventInterfaceUp, EventAddressAdded:
		c.attemptDiscovery(event)

	case EventInterfaceDown:
		c.handleInterfaceDown(event.InterfaceName)

	case EventAddressDeleted:
		// Losing the last address leaves the uplink unusable
		if event.InterfaceInfo != nil && len(event.InterfaceInfo.IPAddresses) == 0 {
			c.handleInterfaceDown(event.InterfaceName)
		}
	}
}

func (c *crowsnest) attemptDiscovery(event NetworkEvent) {
	if event.GatewayIP == "" {
		return
	}
	if !c.tracker.ShouldAttemptDiscovery(event.InterfaceName, event.GatewayIP) {
		logger.WithFields(logrus.Fields{
			"interface": event.InterfaceName,
			"gateway":   event.GatewayIP,
		}).Debug("Skipping discovery, gateway already handled")
		return
	}

	c.tracker.RecordDiscovery(event.InterfaceName, event.GatewayIP, DiscoveryResultPending)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.discover(event)
	}()
}

func (c *crowsnest) discover(event NetworkEvent) {
	iface, gatewayIP := event.InterfaceName, event.GatewayIP
	log := logger.WithFields(logrus.Fields{
		"interface": iface,
		"gateway":   gatewayIP,
	})

	advertisement, err := c.prober.ProbeGateway(c.ctx, iface, gatewayIP)
	if err != nil {
		result := classifyProbeError(err)
		c.tracker.RecordDiscovery(iface, gatewayIP, result)
		log.WithError(err).WithField("result", result.String()).Info("Gateway is not a usable TollGate")
		return
	}

	ch := c.getChandler()
	if ch == nil {
		log.Warn("TollGate discovered but no chandler is set")
		c.tracker.RecordDiscovery(iface, gatewayIP, DiscoveryResultError)
		return
	}

	upstream := &chandler.UpstreamTollgate{
		InterfaceName: iface,
		GatewayIP:     gatewayAddress(gatewayIP, c.config.GatewayPort),
		Advertisement: advertisement,
		DiscoveredAt:  time.Now(),
	}
	if event.InterfaceInfo != nil {
		upstream.MacAddress = event.InterfaceInfo.MacAddress
	}

	if err := ch.HandleUpstreamTollgate(upstream); err != nil {
		// Retried after the discovery timeout, e.g. once auto-pay is back on
		c.tracker.RecordDiscovery(iface, gatewayIP, DiscoveryResultError)
		if errors.Is(err, chandler.ErrAutoPayDisabled) {
			log.Info("TollGate discovered while auto-pay is disabled")
			return
		}
		log.WithError(err).Warn("Chandler failed to handle upstream TollGate")
		return
	}

	c.tracker.RecordDiscovery(iface, gatewayIP, DiscoveryResultSuccess)
	log.WithField("upstream_pubkey", advertisement.PubKey).Info("Upstream TollGate handed to chandler")
}

func (c *crowsnest) handleInterfaceDown(interfaceName string) {
	c.prober.CancelProbesForInterface(interfaceName)
	c.tracker.ClearInterface(interfaceName)

	ch := c.getChandler()
	if ch == nil {
		return
	}
	if err := ch.HandleDisconnect(interfaceName); err != nil {
		logger.WithError(err).WithField("interface", interfaceName).Warn("Chandler failed to handle disconnect")
	}
}

func classifyProbeError(err error) DiscoveryResult {
	switch {
	case errors.Is(err, tollgate_protocol.ErrNetworkUnreachable):
		return DiscoveryResultError
	case errors.Is(err, tollgate_protocol.ErrInvalidAdvertisement):
		return DiscoveryResultValidationFailed
	case errors.Is(err, tollgate_protocol.ErrProtocol):
		var protoErr *tollgate_protocol.Error
		if errors.As(err, &protoErr) && protoErr.Code == "bad-signature" {
			return DiscoveryResultValidationFailed
		}
		return DiscoveryResultNotTollGate
	default:
		return DiscoveryResultError
	}
}

// shouldMonitorInterface applies the ignore and only lists
func shouldMonitorInterface(config *config_manager.CrowsnestConfig, name string) bool {
	for _, ignored := range config.IgnoreInterfaces {
		if name == ignored {
			return false
		}
	}

	// Bridges are local LAN bridges, not uplinks
	if strings.HasPrefix(name, "br-") {
		return false
	}

	if len(config.OnlyInterfaces) > 0 {
		for _, allowed := range config.OnlyInterfaces {
			if name == allowed {
				return true
			}
		}
		return false
	}

	return true
}
