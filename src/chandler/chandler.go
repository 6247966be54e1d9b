package chandler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/merchant"
	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/OpenTollGate/tollgate-client-go/src/upstream_session_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "chandler")

var (
	ErrStartInProgress = errors.New("session start already in progress for gateway")
	ErrNotDataSession  = errors.New("session is not metered in bytes")
	ErrAutoPayDisabled = errors.New("auto-pay is disabled")
)

// Chandler buys and renews upstream sessions. It owns no session state
// itself; every transition goes through the session manager, and the
// registry lock is never held across a network call.
type Chandler struct {
	config   *config_manager.ChandlerConfig
	sessions *upstream_session_manager.UpstreamSessionManager
	client   GatewayClient
	payments PaymentSelector
	store    StateStore

	autoPay atomic.Bool

	// gateways with a start in flight
	pending   map[string]struct{}
	pendingMu sync.Mutex
}

// New creates a chandler. store may be nil to disable persistence.
func New(
	config *config_manager.ChandlerConfig,
	sessions *upstream_session_manager.UpstreamSessionManager,
	client GatewayClient,
	payments PaymentSelector,
	store StateStore,
) *Chandler {
	c := &Chandler{
		config:   config,
		sessions: sessions,
		client:   client,
		payments: payments,
		store:    store,
		pending:  make(map[string]struct{}),
	}
	c.autoPay.Store(config.AutoPay)
	return c
}

// SetAutoPay enables or disables automatic purchases and renewals
func (c *Chandler) SetAutoPay(enabled bool) {
	c.autoPay.Store(enabled)
	logger.WithField("enabled", enabled).Info("Auto-pay toggled")
}

func (c *Chandler) AutoPayEnabled() bool {
	return c.autoPay.Load()
}

// Sessions returns a copy of every tracked session
func (c *Chandler) Sessions() []*upstream_session_manager.UpstreamSession {
	return c.sessions.All()
}

// HandleUpstreamTollgate starts paying a newly discovered gateway. With
// auto-pay off nothing is bought and ErrAutoPayDisabled is returned.
func (c *Chandler) HandleUpstreamTollgate(upstream *UpstreamTollgate) error {
	ad, err := tollgate_protocol.ExtractAdvertisement(upstream.Advertisement)
	if err != nil {
		return &ChandlerError{
			Type:    ErrorTypeDiscovery,
			Code:    "invalid-advertisement",
			Message: "discovered gateway on " + upstream.InterfaceName + " has an invalid advertisement",
			Cause:   err,
		}
	}

	log := logger.WithFields(logrus.Fields{
		"interface":       upstream.InterfaceName,
		"gateway":         upstream.GatewayIP,
		"upstream_pubkey": utils.ShortKey(ad.GatewayIdentity),
		"metric":          ad.Metric,
	})

	if !c.AutoPayEnabled() {
		log.Info("TollGate discovered, auto-pay disabled so not purchasing")
		return ErrAutoPayDisabled
	}

	log.Info("TollGate discovered, starting session")

	ctx, cancel := context.WithTimeout(context.Background(), 4*c.requestTimeout())
	defer cancel()

	_, err = c.startSession(ctx, upstream.GatewayIP, upstream.InterfaceName, ad)
	return err
}

// HandleDisconnect expires the sessions reached through an interface that went down
func (c *Chandler) HandleDisconnect(interfaceName string) error {
	expired := c.sessions.ExpireInterface(interfaceName)
	logger.WithFields(logrus.Fields{
		"interface": interfaceName,
		"expired":   expired,
	}).Info("Interface down, expired upstream sessions")

	if expired > 0 {
		c.persist()
	}
	return nil
}

// Disconnect expires every active session, e.g. when all connectivity is lost
func (c *Chandler) Disconnect() int {
	expired := c.sessions.ExpireAll()
	logger.WithField("expired", expired).Info("Network lost, expired all upstream sessions")
	c.persist()
	return expired
}

// StartSession buys an initial allotment from a gateway. If a live session
// already exists it is returned unchanged. On failure nothing is recorded.
func (c *Chandler) StartSession(ctx context.Context, gatewayAddress string, ad *tollgate_protocol.Advertisement) (*upstream_session_manager.UpstreamSession, error) {
	return c.startSession(ctx, gatewayAddress, "", ad)
}

func (c *Chandler) startSession(ctx context.Context, gatewayAddress, interfaceName string, ad *tollgate_protocol.Advertisement) (*upstream_session_manager.UpstreamSession, error) {
	gateway := ad.GatewayIdentity

	if c.sessions.HasActiveSession(gateway) {
		logger.WithField("upstream_pubkey", utils.ShortKey(gateway)).Debug("Session already active, not starting another")
		return c.sessions.Get(gateway)
	}

	if !c.beginStart(gateway) {
		return nil, fmt.Errorf("%w: %s", ErrStartInProgress, gateway)
	}
	defer c.endStart(gateway)

	if err := ValidateTrustPolicy(gateway, c.config.Trust.Allowlist, c.config.Trust.Blocklist, c.config.Trust.DefaultPolicy); err != nil {
		return nil, err
	}

	steps := tollgate_protocol.InitialPurchaseSteps(ad, c.config.Sessions.InitialTimeFloor, c.config.Sessions.InitialDataFloor)

	options, err := eligibleOptions(ad, steps, c.config.MaxPricePerMillisecond, c.config.MaxPricePerByte)
	if err != nil {
		return nil, err
	}

	device, err := c.client.FetchDeviceIdentifier(ctx, gatewayAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device identifier from %s: %w", gatewayAddress, err)
	}

	option, token, err := c.payments.Pay(options, steps)
	if err != nil {
		return nil, &ChandlerError{
			Type:           ErrorTypePayment,
			Code:           "payment-failed",
			Message:        fmt.Sprintf("cannot pay for %d steps", steps),
			Cause:          err,
			UpstreamPubkey: gateway,
		}
	}

	keys, err := tollgate_protocol.GenerateKeyPair()
	if err != nil {
		c.refund(token)
		return nil, err
	}

	resp, err := c.sendPayment(ctx, gatewayAddress, gateway, device, token, keys, ad.Metric)
	if err != nil {
		return nil, err
	}

	session := upstream_session_manager.NewSession(gatewayAddress, *ad, option, device, keys, token.Amount)
	session.InterfaceName = interfaceName
	if c.config.Sessions.RenewalThreshold > 0 {
		session.RenewalThreshold = c.config.Sessions.RenewalThreshold
	}

	if err := session.UpdateFromResponse(resp); err != nil {
		// The gateway already redeemed the token, nothing to refund
		return nil, &ChandlerError{
			Type:           ErrorTypeSession,
			Code:           "session-mismatch",
			Message:        "gateway granted the session to another device",
			Cause:          err,
			UpstreamPubkey: gateway,
		}
	}

	c.sessions.Insert(session)
	c.persist()

	logger.WithFields(logrus.Fields{
		"upstream_pubkey": utils.ShortKey(gateway),
		"session_id":      session.ID,
		"steps":           steps,
		"cost":            token.Amount,
		"unit":            token.Unit,
		"allotment":       session.TotalAllotment,
		"expires":         session.SessionExpiry.Format(time.RFC3339),
	}).Info("Upstream session started")

	return session, nil
}

// RenewSession buys more allotment for an existing session. It is the only
// way out of the Error state. Any failure leaves the session in Error.
func (c *Chandler) RenewSession(ctx context.Context, gatewayIdentity string) (*upstream_session_manager.UpstreamSession, error) {
	session, err := c.sessions.Update(gatewayIdentity, func(s *upstream_session_manager.UpstreamSession) error {
		return s.BeginRenewal()
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"upstream_pubkey": utils.ShortKey(gatewayIdentity),
		"session_id":      session.ID,
	})

	ad := session.Advertisement
	option := session.PricingOption
	steps := tollgate_protocol.RenewalPurchaseSteps(&ad, option, c.config.Sessions.RenewalTimeFloor, c.config.Sessions.RenewalDataFloor)

	paidAllotment, err := tollgate_protocol.CalculateAllotment(steps, ad.StepSize)
	if err != nil {
		return nil, c.failRenewal(gatewayIdentity, err)
	}

	device, err := c.client.FetchDeviceIdentifier(ctx, session.GatewayAddress)
	if err != nil {
		return nil, c.failRenewal(gatewayIdentity, fmt.Errorf("failed to fetch device identifier: %w", err))
	}

	// The gateway would credit whoever it sees now, not the session's device
	if device != session.DeviceIdentifier {
		return nil, c.failRenewal(gatewayIdentity, fmt.Errorf("%w: gateway sees %s, session is for %s",
			upstream_session_manager.ErrSessionMismatch, device, session.DeviceIdentifier))
	}

	token, err := c.payments.CreatePaymentToken(option, steps)
	if err != nil {
		return nil, c.failRenewal(gatewayIdentity, err)
	}

	resp, err := c.sendPayment(ctx, session.GatewayAddress, gatewayIdentity, device, token, session.SessionKeys, ad.Metric)
	if err != nil {
		return nil, c.failRenewal(gatewayIdentity, err)
	}

	if resp.DeviceIdentifier != session.DeviceIdentifier {
		return nil, c.failRenewal(gatewayIdentity, fmt.Errorf("%w: expected %s, got %s",
			upstream_session_manager.ErrSessionMismatch, session.DeviceIdentifier, resp.DeviceIdentifier))
	}

	// Never credit more than was paid for, even if the gateway reports a running total
	extra := min(paidAllotment, resp.Allotment)

	renewed, err := c.sessions.Update(gatewayIdentity, func(s *upstream_session_manager.UpstreamSession) error {
		s.MarkRenewed(extra, token.Amount, resp.SessionExpiry)
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"amount": token.Amount,
			"unit":   token.Unit,
			"mint":   token.MintURL,
			"steps":  steps,
		}).Error("Session removed while renewing, payment was not credited")
		return nil, &ChandlerError{
			Type:           ErrorTypeSession,
			Code:           "renewal-lost",
			Message:        fmt.Sprintf("session removed while renewing, %d %s paid to gateway", token.Amount, token.Unit),
			Cause:          err,
			UpstreamPubkey: gatewayIdentity,
		}
	}

	c.persist()

	log.WithFields(logrus.Fields{
		"steps":     steps,
		"cost":      token.Amount,
		"added":     extra,
		"allotment": renewed.TotalAllotment,
		"payments":  renewed.PaymentCount,
	}).Info("Upstream session renewed")

	return renewed, nil
}

// ReportDataUsage adds consumed bytes to a data-metered session
func (c *Chandler) ReportDataUsage(gatewayIdentity string, bytes uint64) error {
	_, err := c.sessions.Update(gatewayIdentity, func(s *upstream_session_manager.UpstreamSession) error {
		if s.Metric() != tollgate_protocol.MetricData {
			return ErrNotDataSession
		}
		usage := s.CurrentUsage + bytes
		if usage < s.CurrentUsage {
			usage = s.TotalAllotment
		}
		s.UpdateUsage(usage)
		return nil
	})
	return err
}

// ReportInterfaceUsage attributes bytes seen on an interface to the data sessions using it
func (c *Chandler) ReportInterfaceUsage(interfaceName string, bytes uint64) {
	for _, session := range c.sessions.ActiveSessions() {
		if session.InterfaceName != interfaceName || session.Metric() != tollgate_protocol.MetricData {
			continue
		}
		if err := c.ReportDataUsage(session.GatewayIdentity, bytes); err != nil {
			logger.WithError(err).WithField("interface", interfaceName).Debug("Failed to report data usage")
		}
	}
}

// DataInterfaces lists the interfaces carrying active data-metered sessions
func (c *Chandler) DataInterfaces() []string {
	seen := make(map[string]struct{})
	var interfaces []string
	for _, session := range c.sessions.ActiveSessions() {
		if session.Metric() != tollgate_protocol.MetricData || session.InterfaceName == "" {
			continue
		}
		if _, ok := seen[session.InterfaceName]; ok {
			continue
		}
		seen[session.InterfaceName] = struct{}{}
		interfaces = append(interfaces, session.InterfaceName)
	}
	return interfaces
}

// RestoreState loads a persisted snapshot into the session registry
func (c *Chandler) RestoreState(data []byte) error {
	n, err := c.sessions.Restore(data)
	if err != nil {
		return err
	}
	logger.WithField("sessions", n).Info("Restored upstream sessions")
	return nil
}

func (c *Chandler) sendPayment(
	ctx context.Context,
	gatewayAddress, gatewayIdentity string,
	device tollgate_protocol.DeviceIdentifier,
	token *merchant.PaymentToken,
	keys tollgate_protocol.KeyPair,
	metric tollgate_protocol.Metric,
) (*tollgate_protocol.SessionResponse, error) {
	payment, err := tollgate_protocol.BuildPaymentRequest(tollgate_protocol.PaymentRequest{
		GatewayIdentity:  gatewayIdentity,
		DeviceIdentifier: device,
		PaymentToken:     token.Token,
		Steps:            token.Steps,
	}, keys)
	if err != nil {
		c.refund(token)
		return nil, err
	}

	resp, err := c.client.SendPayment(ctx, gatewayAddress, payment, metric)
	if err != nil {
		c.refund(token)
		return nil, err
	}
	return resp, nil
}

// refund reclaims a token the gateway did not redeem. If the gateway did
// redeem it before failing the reclaim fails and the loss is logged.
func (c *Chandler) refund(token *merchant.PaymentToken) {
	if err := c.payments.Refund(token); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"mint":   token.MintURL,
			"amount": token.Amount,
		}).Warn("Could not reclaim payment token")
	}
}

func (c *Chandler) failRenewal(gatewayIdentity string, cause error) error {
	reason := cause.Error()
	if _, err := c.sessions.Update(gatewayIdentity, func(s *upstream_session_manager.UpstreamSession) error {
		s.SetError(reason)
		return nil
	}); err != nil {
		logger.WithError(err).Warn("Failed to record renewal error")
	}
	c.persist()

	logger.WithFields(logrus.Fields{
		"upstream_pubkey": utils.ShortKey(gatewayIdentity),
		"reason":          reason,
	}).Error("Renewal failed, session needs manual renewal")

	return &ChandlerError{
		Type:           ErrorTypeSession,
		Code:           "renewal-failed",
		Message:        "renewal failed",
		Cause:          cause,
		UpstreamPubkey: gatewayIdentity,
	}
}

func (c *Chandler) persist() {
	if c.store == nil {
		return
	}
	data, err := c.sessions.Snapshot()
	if err != nil {
		logger.WithError(err).Error("Failed to snapshot sessions")
		return
	}
	if err := c.store.SaveSessionState(data); err != nil {
		logger.WithError(err).Error("Failed to persist sessions")
	}
}

func (c *Chandler) beginStart(gateway string) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if _, busy := c.pending[gateway]; busy {
		return false
	}
	c.pending[gateway] = struct{}{}
	return true
}

func (c *Chandler) endStart(gateway string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.pending, gateway)
}

func (c *Chandler) requestTimeout() time.Duration {
	if c.config.RequestTimeout > 0 {
		return c.config.RequestTimeout
	}
	return tollgate_protocol.DefaultRequestTimeout
}
