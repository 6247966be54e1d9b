package crowsnest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
)

const (
	defaultProbeRetryCount = 3
	defaultProbeRetryDelay = 2 * time.Second
)

type advertisementFetcher interface {
	FetchAdvertisement(ctx context.Context, gatewayAddress string) (*tollgate_protocol.Advertisement, *nostr.Event, error)
}

type activeProbe struct {
	id     uint64
	cancel context.CancelFunc
}

// tollGateProber implements the TollGateProber interface
type tollGateProber struct {
	config     *config_manager.CrowsnestConfig
	client     advertisementFetcher
	retryCount int
	retryDelay time.Duration

	// one probe per interface; a newer probe supersedes the older one
	activeProbes map[string]activeProbe
	nextProbeID  uint64
	probesMutex  sync.Mutex
}

// NewTollGateProber creates a new TollGate prober
func NewTollGateProber(config *config_manager.CrowsnestConfig) TollGateProber {
	return newTollGateProber(config, tollgate_protocol.NewClient(config.ProbeTimeout))
}

func newTollGateProber(config *config_manager.CrowsnestConfig, client advertisementFetcher) *tollGateProber {
	return &tollGateProber{
		config:       config,
		client:       client,
		retryCount:   defaultProbeRetryCount,
		retryDelay:   defaultProbeRetryDelay,
		activeProbes: make(map[string]activeProbe),
	}
}

// ProbeGateway fetches the gateway's advertisement, retrying transient
// failures. Only a verified, valid advertisement event is returned.
func (tp *tollGateProber) ProbeGateway(ctx context.Context, interfaceName, gatewayIP string) (*nostr.Event, error) {
	if gatewayIP == "" {
		return nil, &CrowsnestError{Type: ErrorTypeValidation, Code: "empty-gateway", Message: "gateway IP is empty"}
	}

	ctx, done := tp.track(ctx, interfaceName)
	defer done()

	address := gatewayAddress(gatewayIP, tp.config.GatewayPort)
	log := logger.WithFields(logrus.Fields{
		"interface": interfaceName,
		"gateway":   address,
	})
	log.Info("Probing gateway for TollGate advertisement")

	var lastErr error
	for attempt := 0; attempt < tp.retryCount; attempt++ {
		if attempt > 0 {
			log.WithField("attempt", attempt+1).Debug("Retrying gateway probe")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("probe cancelled during retry delay: %w", ctx.Err())
			case <-time.After(tp.retryDelay):
			}
		}

		_, event, err := tp.client.FetchAdvertisement(ctx, address)
		if err == nil {
			log.WithField("upstream_pubkey", event.PubKey).Info("Received valid TollGate advertisement")
			return event, nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err,
		}).Warn("Probe attempt failed for gateway")
	}

	return nil, fmt.Errorf("failed to probe gateway %s: %w", address, lastErr)
}

// CancelProbesForInterface cancels any active probes for the specified interface
func (tp *tollGateProber) CancelProbesForInterface(interfaceName string) {
	tp.probesMutex.Lock()
	defer tp.probesMutex.Unlock()

	if probe, exists := tp.activeProbes[interfaceName]; exists {
		logger.WithField("interface", interfaceName).Info("Cancelling active probe for interface")
		probe.cancel()
		delete(tp.activeProbes, interfaceName)
	}
}

func (tp *tollGateProber) track(ctx context.Context, interfaceName string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	tp.probesMutex.Lock()
	if previous, exists := tp.activeProbes[interfaceName]; exists {
		previous.cancel()
	}
	tp.nextProbeID++
	id := tp.nextProbeID
	tp.activeProbes[interfaceName] = activeProbe{id: id, cancel: cancel}
	tp.probesMutex.Unlock()

	return ctx, func() {
		cancel()
		tp.probesMutex.Lock()
		if current, exists := tp.activeProbes[interfaceName]; exists && current.id == id {
			delete(tp.activeProbes, interfaceName)
		}
		tp.probesMutex.Unlock()
	}
}

// retryable reports whether another attempt could give a different answer.
// A gateway that answered with a bad or missing advertisement will not.
func retryable(err error) bool {
	return errors.Is(err, tollgate_protocol.ErrNetworkUnreachable)
}

// gatewayAddress turns a gateway IP into the address the protocol client dials
func gatewayAddress(gatewayIP string, port int) string {
	if port == 0 {
		port = tollgate_protocol.DefaultGatewayPort
	}
	if ip := net.ParseIP(gatewayIP); ip != nil && ip.To4() == nil {
		return fmt.Sprintf("http://[%s]:%d", gatewayIP, port)
	}
	if port == tollgate_protocol.DefaultGatewayPort {
		return gatewayIP
	}
	return fmt.Sprintf("http://%s:%d", gatewayIP, port)
}
