package crowsnest

import (
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/sirupsen/logrus"
)

// simpleDiscoveryTracker remembers the last probe of every interface/gateway pair
type simpleDiscoveryTracker struct {
	config       *config_manager.CrowsnestConfig
	lastAttempts map[string]DiscoveryAttempt
	now          func() time.Time
	mu           sync.RWMutex
}

// NewDiscoveryTracker creates a new simple discovery tracker
func NewDiscoveryTracker(config *config_manager.CrowsnestConfig) DiscoveryTracker {
	return &simpleDiscoveryTracker{
		config:       config,
		lastAttempts: make(map[string]DiscoveryAttempt),
		now:          time.Now,
	}
}

func attemptKey(interfaceName, gatewayIP string) string {
	return interfaceName + ":" + gatewayIP
}

// ShouldAttemptDiscovery checks if discovery should be attempted based on previous results
func (dt *simpleDiscoveryTracker) ShouldAttemptDiscovery(interfaceName, gatewayIP string) bool {
	dt.mu.RLock()
	defer dt.mu.RUnlock()

	lastAttempt, exists := dt.lastAttempts[attemptKey(interfaceName, gatewayIP)]
	if !exists {
		return true
	}

	// Handed off to the chandler; only an interface down clears this
	if lastAttempt.Result == DiscoveryResultSuccess {
		return false
	}

	elapsed := dt.now().Sub(lastAttempt.AttemptTime)
	if lastAttempt.Result == DiscoveryResultPending {
		return elapsed > dt.config.ProbeTimeout*2
	}

	return elapsed > dt.config.DiscoveryTimeout
}

// RecordDiscovery records when a discovery attempt was made with its result
func (dt *simpleDiscoveryTracker) RecordDiscovery(interfaceName, gatewayIP string, result DiscoveryResult) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	dt.lastAttempts[attemptKey(interfaceName, gatewayIP)] = DiscoveryAttempt{
		InterfaceName: interfaceName,
		GatewayIP:     gatewayIP,
		AttemptTime:   dt.now(),
		Result:        result,
	}
}

// ClearInterface removes all discovery attempts for a specific interface
func (dt *simpleDiscoveryTracker) ClearInterface(interfaceName string) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	deletedCount := 0
	for key, attempt := range dt.lastAttempts {
		if attempt.InterfaceName == interfaceName {
			delete(dt.lastAttempts, key)
			deletedCount++
		}
	}
	logger.WithFields(logrus.Fields{
		"interface":     interfaceName,
		"deleted_count": deletedCount,
	}).Debug("Cleared discovery attempts for interface")
}

// Cleanup clears all recorded attempts
func (dt *simpleDiscoveryTracker) Cleanup() {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	dt.lastAttempts = make(map[string]DiscoveryAttempt)
}
