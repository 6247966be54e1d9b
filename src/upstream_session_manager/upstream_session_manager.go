package upstream_session_manager

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "upstream_session_manager")

// UpstreamSessionManager is the registry of upstream sessions, one per
// gateway identity. Every method holds the lock for one logical operation
// only; callers get copies, never pointers into the registry.
type UpstreamSessionManager struct {
	sessions map[string]*UpstreamSession
	mu       sync.RWMutex
}

// New creates an empty session registry
func New() *UpstreamSessionManager {
	return &UpstreamSessionManager{
		sessions: make(map[string]*UpstreamSession),
	}
}

// Insert stores a session, replacing any existing one for the same gateway
func (usm *UpstreamSessionManager) Insert(session *UpstreamSession) {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	if old, exists := usm.sessions[session.GatewayIdentity]; exists {
		logger.WithFields(logrus.Fields{
			"gateway":     session.GatewayIdentity,
			"old_session": old.ID,
			"new_session": session.ID,
		}).Info("Replacing existing session for gateway")
	}
	usm.sessions[session.GatewayIdentity] = session.Clone()
}

// Get returns a copy of the session for a gateway
func (usm *UpstreamSessionManager) Get(gatewayIdentity string) (*UpstreamSession, error) {
	usm.mu.RLock()
	defer usm.mu.RUnlock()

	session, exists := usm.sessions[gatewayIdentity]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, gatewayIdentity)
	}
	return session.Clone(), nil
}

// Remove drops the session for a gateway, reporting whether one existed
func (usm *UpstreamSessionManager) Remove(gatewayIdentity string) bool {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	_, exists := usm.sessions[gatewayIdentity]
	delete(usm.sessions, gatewayIdentity)
	return exists
}

// Update applies fn to the stored session inside a single critical section
// and returns a copy of the result. fn must not block.
func (usm *UpstreamSessionManager) Update(gatewayIdentity string, fn func(*UpstreamSession) error) (*UpstreamSession, error) {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	session, exists := usm.sessions[gatewayIdentity]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, gatewayIdentity)
	}

	if err := fn(session); err != nil {
		return session.Clone(), err
	}
	return session.Clone(), nil
}

// All returns copies of every session, ordered by creation time
func (usm *UpstreamSessionManager) All() []*UpstreamSession {
	return usm.filter(func(*UpstreamSession) bool { return true })
}

// ActiveSessions returns sessions that are Active or Renewing and not expired
func (usm *UpstreamSessionManager) ActiveSessions() []*UpstreamSession {
	return usm.filter(func(s *UpstreamSession) bool {
		return s.IsActive() && !s.IsExpired()
	})
}

// SessionsNeedingRenewal returns active sessions past their renewal threshold
func (usm *UpstreamSessionManager) SessionsNeedingRenewal() []*UpstreamSession {
	return usm.filter(func(s *UpstreamSession) bool {
		return s.NeedsRenewal()
	})
}

// ExpiredSessions returns sessions whose time or allotment ran out
func (usm *UpstreamSessionManager) ExpiredSessions() []*UpstreamSession {
	return usm.filter(func(s *UpstreamSession) bool {
		return s.IsExpired()
	})
}

// HasActiveSession reports whether a gateway already has a live session
func (usm *UpstreamSessionManager) HasActiveSession(gatewayIdentity string) bool {
	usm.mu.RLock()
	defer usm.mu.RUnlock()

	session, exists := usm.sessions[gatewayIdentity]
	return exists && session.IsActive() && !session.IsExpired()
}

// UpdateTimeBasedUsage sets the usage of time-metered sessions to the
// milliseconds elapsed since they were created. Data sessions are left to
// the traffic meter.
func (usm *UpstreamSessionManager) UpdateTimeBasedUsage() {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	now := nowFunc()
	for _, session := range usm.sessions {
		if session.Metric() != tollgate_protocol.MetricTime || !session.IsActive() {
			continue
		}
		elapsed := now.Sub(session.CreatedAt).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		session.UpdateUsage(uint64(elapsed))
	}
}

// AddUsage adds consumed units to a gateway's session
func (usm *UpstreamSessionManager) AddUsage(gatewayIdentity string, delta uint64) error {
	_, err := usm.Update(gatewayIdentity, func(s *UpstreamSession) error {
		usage := s.CurrentUsage + delta
		if usage < s.CurrentUsage {
			usage = s.TotalAllotment
		}
		s.UpdateUsage(usage)
		return nil
	})
	return err
}

// CleanupExpiredSessions removes every expired session and returns them
func (usm *UpstreamSessionManager) CleanupExpiredSessions() []*UpstreamSession {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	var removed []*UpstreamSession
	for gateway, session := range usm.sessions {
		if session.IsExpired() {
			removed = append(removed, session.Clone())
			delete(usm.sessions, gateway)
			logger.WithFields(logrus.Fields{
				"gateway":    gateway,
				"session_id": session.ID,
				"usage":      session.CurrentUsage,
				"allotment":  session.TotalAllotment,
			}).Info("Removed expired session")
		}
	}
	return removed
}

// ExpireAll marks every active session Expired, returning how many changed
func (usm *UpstreamSessionManager) ExpireAll() int {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	count := 0
	for _, session := range usm.sessions {
		if session.IsActive() {
			session.Expire()
			count++
		}
	}
	return count
}

// ExpireInterface marks active sessions reached through interfaceName Expired.
// Sessions with no recorded interface are expired too, since their uplink is unknown.
func (usm *UpstreamSessionManager) ExpireInterface(interfaceName string) int {
	usm.mu.Lock()
	defer usm.mu.Unlock()

	count := 0
	for _, session := range usm.sessions {
		if !session.IsActive() {
			continue
		}
		if session.InterfaceName == "" || session.InterfaceName == interfaceName {
			session.Expire()
			count++
		}
	}
	return count
}

// Snapshot serializes the registry for persistence
func (usm *UpstreamSessionManager) Snapshot() ([]byte, error) {
	usm.mu.RLock()
	defer usm.mu.RUnlock()

	return json.MarshalIndent(usm.sessions, "", "  ")
}

// Restore replaces the registry with a snapshot produced by Snapshot.
// Sessions that expired while the daemon was down are dropped.
func (usm *UpstreamSessionManager) Restore(data []byte) (int, error) {
	sessions := make(map[string]*UpstreamSession)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sessions); err != nil {
			return 0, fmt.Errorf("failed to decode session snapshot: %w", err)
		}
	}

	for gateway, session := range sessions {
		if session == nil || session.IsExpired() {
			delete(sessions, gateway)
			continue
		}
		// Interrupted renewals are surfaced rather than resumed
		if session.Status == StatusRenewing {
			session.SetError("renewal interrupted by restart")
		}
	}

	usm.mu.Lock()
	usm.sessions = sessions
	usm.mu.Unlock()

	return len(sessions), nil
}

func (usm *UpstreamSessionManager) filter(keep func(*UpstreamSession) bool) []*UpstreamSession {
	usm.mu.RLock()
	defer usm.mu.RUnlock()

	result := make([]*UpstreamSession, 0, len(usm.sessions))
	for _, session := range usm.sessions {
		if keep(session) {
			result = append(result, session.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
