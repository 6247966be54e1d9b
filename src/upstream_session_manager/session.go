package upstream_session_manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/google/uuid"
)

// DefaultRenewalThreshold is the fraction of the allotment that may be used
// before a session is renewed.
const DefaultRenewalThreshold = 0.8

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionMismatch = errors.New("session response device identifier does not match session")
)

// nowFunc is swapped in tests
var nowFunc = time.Now

// SessionStatus is the lifecycle state of an upstream session
type SessionStatus int

const (
	StatusInitializing SessionStatus = iota
	StatusActive
	StatusRenewing
	StatusExpired
	StatusError
)

func (s SessionStatus) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusActive:
		return "active"
	case StatusRenewing:
		return "renewing"
	case StatusExpired:
		return "expired"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s SessionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionStatus) UnmarshalText(text []byte) error {
	for candidate := StatusInitializing; candidate <= StatusError; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", string(text))
}

// UpstreamSession is the customer side record of one paid session with one gateway.
// Usage and allotment are in the advertisement's metric units.
type UpstreamSession struct {
	ID               string                             `json:"id"`
	GatewayIdentity  string                             `json:"gateway_identity"`
	GatewayAddress   string                             `json:"gateway_address"`
	InterfaceName    string                             `json:"interface_name,omitempty"`
	DeviceIdentifier tollgate_protocol.DeviceIdentifier `json:"device_identifier"`
	Status           SessionStatus                      `json:"status"`
	ErrorReason      string                             `json:"error_reason,omitempty"`

	SessionKeys   tollgate_protocol.KeyPair       `json:"session_keys"`
	PricingOption tollgate_protocol.PricingOption `json:"pricing_option"`
	Advertisement tollgate_protocol.Advertisement `json:"advertisement"`

	TotalAllotment   uint64    `json:"total_allotment"`
	CurrentUsage     uint64    `json:"current_usage"`
	SessionExpiry    time.Time `json:"session_expiry"`
	RenewalThreshold float64   `json:"renewal_threshold"`

	CreatedAt        time.Time  `json:"created_at"`
	LastRenewal      *time.Time `json:"last_renewal,omitempty"`
	RenewalStartedAt *time.Time `json:"renewal_started_at,omitempty"`
	TotalSpent       uint64     `json:"total_spent"`
	PaymentCount     uint64     `json:"payment_count"`
}

// NewSession creates a session for the first payment made to a gateway.
// sessionKeys must be the keys the initial payment was signed with.
func NewSession(
	gatewayAddress string,
	ad tollgate_protocol.Advertisement,
	option tollgate_protocol.PricingOption,
	device tollgate_protocol.DeviceIdentifier,
	sessionKeys tollgate_protocol.KeyPair,
	initialCost uint64,
) *UpstreamSession {
	return &UpstreamSession{
		ID:               uuid.NewString(),
		GatewayIdentity:  ad.GatewayIdentity,
		GatewayAddress:   gatewayAddress,
		DeviceIdentifier: device,
		Status:           StatusInitializing,
		SessionKeys:      sessionKeys,
		PricingOption:    option,
		Advertisement:    ad,
		RenewalThreshold: DefaultRenewalThreshold,
		CreatedAt:        nowFunc(),
		TotalSpent:       initialCost,
		PaymentCount:     1,
	}
}

// Metric returns the unit this session is metered in
func (s *UpstreamSession) Metric() tollgate_protocol.Metric {
	return s.Advertisement.Metric
}

// UpdateFromResponse credits the allotment granted by the gateway.
// A response for another device is rejected and leaves the session untouched.
func (s *UpstreamSession) UpdateFromResponse(resp *tollgate_protocol.SessionResponse) error {
	if resp.DeviceIdentifier != s.DeviceIdentifier {
		return fmt.Errorf("%w: expected %s, got %s", ErrSessionMismatch, s.DeviceIdentifier, resp.DeviceIdentifier)
	}

	s.TotalAllotment += resp.Allotment
	s.SessionExpiry = resp.SessionExpiry
	s.Status = StatusActive
	s.ErrorReason = ""
	return nil
}

// NeedsRenewal reports whether an active session crossed its renewal threshold
func (s *UpstreamSession) NeedsRenewal() bool {
	if s.Status != StatusActive {
		return false
	}
	if s.TotalAllotment == 0 {
		return true
	}
	return float64(s.CurrentUsage)/float64(s.TotalAllotment) >= s.RenewalThreshold
}

// IsExpired is true once the session was expired, the gateway's expiry
// passed or the allotment is used up
func (s *UpstreamSession) IsExpired() bool {
	if s.Status == StatusExpired {
		return true
	}
	return !nowFunc().Before(s.SessionExpiry) || s.CurrentUsage >= s.TotalAllotment
}

// UpdateUsage records consumption, clamped to the allotment
func (s *UpstreamSession) UpdateUsage(usage uint64) {
	s.CurrentUsage = min(usage, s.TotalAllotment)
	if s.IsExpired() && s.Status != StatusError {
		s.Status = StatusExpired
	}
}

// BeginRenewal moves an active (or errored, for manual recovery) session into Renewing
func (s *UpstreamSession) BeginRenewal() error {
	switch s.Status {
	case StatusActive, StatusError:
	default:
		return fmt.Errorf("cannot renew session in state %s", s.Status)
	}

	now := nowFunc()
	s.Status = StatusRenewing
	s.ErrorReason = ""
	s.RenewalStartedAt = &now
	return nil
}

// MarkRenewed credits a successful renewal. A zero expiry leaves the current one.
func (s *UpstreamSession) MarkRenewed(extraAllotment, extraCost uint64, expiry time.Time) {
	now := nowFunc()
	s.TotalAllotment += extraAllotment
	s.TotalSpent += extraCost
	s.PaymentCount++
	s.LastRenewal = &now
	s.RenewalStartedAt = nil
	if expiry.After(s.SessionExpiry) {
		s.SessionExpiry = expiry
	}
	s.Status = StatusActive
}

func (s *UpstreamSession) SetError(reason string) {
	s.Status = StatusError
	s.ErrorReason = reason
	s.RenewalStartedAt = nil
}

// Expire forces the session into Expired, e.g. after losing the uplink
func (s *UpstreamSession) Expire() {
	s.Status = StatusExpired
	s.RenewalStartedAt = nil
}

// IsActive is true while the session is Active or Renewing
func (s *UpstreamSession) IsActive() bool {
	return s.Status == StatusActive || s.Status == StatusRenewing
}

// RenewalStalled reports a session that has been Renewing for longer than grace
func (s *UpstreamSession) RenewalStalled(grace time.Duration) bool {
	return s.Status == StatusRenewing && s.RenewalStartedAt != nil && nowFunc().Sub(*s.RenewalStartedAt) > grace
}

// RemainingTime is the unused part of a time session; zero for data sessions
func (s *UpstreamSession) RemainingTime() time.Duration {
	if s.Metric() != tollgate_protocol.MetricTime {
		return 0
	}
	if s.CurrentUsage >= s.TotalAllotment {
		return 0
	}
	return time.Duration(s.TotalAllotment-s.CurrentUsage) * time.Millisecond
}

// RemainingData is the unused part of a data session in bytes; zero for time sessions
func (s *UpstreamSession) RemainingData() uint64 {
	if s.Metric() != tollgate_protocol.MetricData {
		return 0
	}
	if s.CurrentUsage >= s.TotalAllotment {
		return 0
	}
	return s.TotalAllotment - s.CurrentUsage
}

// UsagePercentage returns the consumed fraction of the allotment, clamped to 1.0
func (s *UpstreamSession) UsagePercentage() float64 {
	if s.TotalAllotment == 0 {
		return 1.0
	}
	return min(float64(s.CurrentUsage)/float64(s.TotalAllotment), 1.0)
}

// Clone returns a copy that shares no mutable state with s
func (s *UpstreamSession) Clone() *UpstreamSession {
	c := *s
	if s.LastRenewal != nil {
		t := *s.LastRenewal
		c.LastRenewal = &t
	}
	if s.RenewalStartedAt != nil {
		t := *s.RenewalStartedAt
		c.RenewalStartedAt = &t
	}
	c.Advertisement.PricingOptions = append([]tollgate_protocol.PricingOption(nil), s.Advertisement.PricingOptions...)
	c.Advertisement.Tips = append([]string(nil), s.Advertisement.Tips...)
	return &c
}
