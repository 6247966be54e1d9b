package chandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/OpenTollGate/tollgate-client-go/src/upstream_session_manager"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ChandlerInterface = (*Chandler)(nil)

func insertSession(t *testing.T, f *fixture, ad *tollgate_protocol.Advertisement, address, iface string, allotment uint64) *upstream_session_manager.UpstreamSession {
	t.Helper()
	keys, err := tollgate_protocol.GenerateKeyPair()
	require.NoError(t, err)

	s := upstream_session_manager.NewSession(address, *ad, ad.PricingOptions[0], testDevice, keys, 300)
	s.InterfaceName = iface
	require.NoError(t, s.UpdateFromResponse(&tollgate_protocol.SessionResponse{
		Allotment:        allotment,
		SessionExpiry:    time.Now().Add(time.Hour),
		DeviceIdentifier: testDevice,
	}))
	f.sessions.Insert(s)
	return s
}

func chandlerError(t *testing.T, err error) *ChandlerError {
	t.Helper()
	var ce *ChandlerError
	require.True(t, errors.As(err, &ce), "expected a ChandlerError, got %v", err)
	return ce
}

func signedAdvertisementEvent(t *testing.T, ad *tollgate_protocol.Advertisement) *nostr.Event {
	t.Helper()
	option := ad.PricingOptions[0]
	event := &nostr.Event{
		Kind:      tollgate_protocol.AdvertisementKind,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"metric", string(ad.Metric)},
			{"step_size", "1000"},
			{"price_per_step", option.AssetType, "1", option.PriceUnit, option.MintURL, "60"},
		},
	}
	require.NoError(t, event.Sign(nostr.GeneratePrivateKey()))
	return event
}

func TestStartSession(t *testing.T) {
	f := newFixture(t, 1000)
	ad := timeAdvertisement("gw")

	session, err := f.chandler.StartSession(context.Background(), "10.0.0.1", ad)
	require.NoError(t, err)

	// 5 minute floor at 1000ms steps is 300 steps at 1 sat each
	assert.Equal(t, upstream_session_manager.StatusActive, session.Status)
	assert.Equal(t, uint64(300000), session.TotalAllotment)
	assert.Equal(t, uint64(300), session.TotalSpent)
	assert.Equal(t, uint64(1), session.PaymentCount)
	assert.Equal(t, testDevice, session.DeviceIdentifier)
	assert.Equal(t, uint64(700), f.wallet.Balance())

	payment := f.client.lastPayment("10.0.0.1")
	require.NotNil(t, payment)
	assert.Equal(t, tollgate_protocol.PaymentKind, payment.Kind)
	assert.Equal(t, session.SessionKeys.PublicKey, payment.PubKey)
	request, err := tollgate_protocol.ParsePaymentRequest(payment)
	require.NoError(t, err)
	assert.Equal(t, "gw", request.GatewayIdentity)

	stored, err := f.sessions.Get("gw")
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)
	assert.Positive(t, f.store.saveCount())
}

func TestStartSessionKeepsActiveSession(t *testing.T) {
	f := newFixture(t, 1000)
	ad := timeAdvertisement("gw")

	first, err := f.chandler.StartSession(context.Background(), "10.0.0.1", ad)
	require.NoError(t, err)
	second, err := f.chandler.StartSession(context.Background(), "10.0.0.1", ad)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.client.paymentCount("10.0.0.1"))
	assert.Equal(t, uint64(700), f.wallet.Balance())
}

func TestStartSessionRefundsRejectedPayment(t *testing.T) {
	f := newFixture(t, 1000)
	f.client.send["10.0.0.1"] = reject("token already spent")

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tollgate_protocol.ErrPaymentRejected))

	assert.Equal(t, uint64(1000), f.wallet.Balance(), "unredeemed token is reclaimed")
	_, err = f.sessions.Get("gw")
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionNotFound))
}

func TestStartSessionRejectsUntrustedGateway(t *testing.T) {
	f := newFixture(t, 1000)
	f.config.Trust.Blocklist = []string{"gw"}

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	assert.Equal(t, ErrorTypeTrust, chandlerError(t, err).Type)
	assert.Zero(t, f.client.paymentCount("10.0.0.1"))
}

func TestStartSessionOverBudget(t *testing.T) {
	f := newFixture(t, 1000)
	f.config.MaxPricePerMillisecond = 0.0001

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	ce := chandlerError(t, err)
	assert.Equal(t, ErrorTypeBudget, ce.Type)
	assert.Equal(t, "price-too-high", ce.Code)
	assert.Zero(t, f.client.paymentCount("10.0.0.1"))
	assert.Equal(t, uint64(1000), f.wallet.Balance())
}

func TestStartSessionInsufficientFunds(t *testing.T) {
	f := newFixture(t, 100)

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	assert.Equal(t, ErrorTypePayment, chandlerError(t, err).Type)
	assert.Zero(t, f.client.paymentCount("10.0.0.1"))
	assert.Equal(t, uint64(100), f.wallet.Balance())
}

func TestStartSessionDeviceMismatch(t *testing.T) {
	f := newFixture(t, 1000)
	f.client.send["10.0.0.1"] = func(payment *nostr.Event) (*tollgate_protocol.SessionResponse, error) {
		return &tollgate_protocol.SessionResponse{
			Allotment:        300000,
			SessionExpiry:    time.Now().Add(time.Hour),
			DeviceIdentifier: tollgate_protocol.DeviceIdentifier{Type: "mac", Value: "11:22:33:44:55:66"},
		}, nil
	}

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	ce := chandlerError(t, err)
	assert.Equal(t, "session-mismatch", ce.Code)
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionMismatch))

	_, err = f.sessions.Get("gw")
	assert.Error(t, err)
}

func TestStartSessionDeviceIdentifierUnavailable(t *testing.T) {
	f := newFixture(t, 1000)
	f.client.deviceErr = errors.New("connection refused")

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	require.Error(t, err)
	assert.Equal(t, uint64(1000), f.wallet.Balance(), "nothing is minted before the device is known")
}

func TestPendingStartGuard(t *testing.T) {
	f := newFixture(t, 1000)

	assert.True(t, f.chandler.beginStart("gw"))
	assert.False(t, f.chandler.beginStart("gw"))

	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	assert.True(t, errors.Is(err, ErrStartInProgress))

	f.chandler.endStart("gw")
	assert.True(t, f.chandler.beginStart("gw"))
}

func TestRenewSession(t *testing.T) {
	f := newFixture(t, 1000)
	original := insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)

	// Gateway reports a running total larger than what was paid for
	f.client.send["10.0.0.1"] = grant(900000)

	renewed, err := f.chandler.RenewSession(context.Background(), "gw")
	require.NoError(t, err)

	assert.Equal(t, upstream_session_manager.StatusActive, renewed.Status)
	assert.Equal(t, uint64(600000), renewed.TotalAllotment, "credit is capped at the purchased allotment")
	assert.Equal(t, uint64(600), renewed.TotalSpent)
	assert.Equal(t, uint64(2), renewed.PaymentCount)
	assert.NotNil(t, renewed.LastRenewal)
	assert.Nil(t, renewed.RenewalStartedAt)
	assert.Equal(t, original.ID, renewed.ID)
	assert.Equal(t, uint64(700), f.wallet.Balance())

	payment := f.client.lastPayment("10.0.0.1")
	assert.Equal(t, original.SessionKeys.PublicKey, payment.PubKey, "renewals are signed with the session keys")
}

func TestRenewSessionFailureNeedsManualRecovery(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	f.client.send["10.0.0.1"] = reject("payment rejected")

	_, err := f.chandler.RenewSession(context.Background(), "gw")
	ce := chandlerError(t, err)
	assert.Equal(t, "renewal-failed", ce.Code)
	assert.True(t, errors.Is(err, tollgate_protocol.ErrPaymentRejected))

	failed, err := f.sessions.Get("gw")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusError, failed.Status)
	assert.NotEmpty(t, failed.ErrorReason)
	assert.False(t, failed.NeedsRenewal(), "errored sessions are not retried automatically")
	assert.Equal(t, uint64(1000), f.wallet.Balance())

	f.client.send["10.0.0.1"] = grant(300000)
	recovered, err := f.chandler.RenewSession(context.Background(), "gw")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusActive, recovered.Status)
	assert.Empty(t, recovered.ErrorReason)
	assert.Equal(t, uint64(600000), recovered.TotalAllotment)
}

func TestRenewSessionDeviceMismatch(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	f.client.send["10.0.0.1"] = func(payment *nostr.Event) (*tollgate_protocol.SessionResponse, error) {
		return &tollgate_protocol.SessionResponse{
			Allotment:        300000,
			SessionExpiry:    time.Now().Add(2 * time.Hour),
			DeviceIdentifier: tollgate_protocol.DeviceIdentifier{Type: "mac", Value: "11:22:33:44:55:66"},
		}, nil
	}

	_, err := f.chandler.RenewSession(context.Background(), "gw")
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionMismatch))

	s, err := f.sessions.Get("gw")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusError, s.Status)
	assert.Equal(t, uint64(300000), s.TotalAllotment)
}

func TestRenewSessionDeviceChangedBeforePayment(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	f.client.device = tollgate_protocol.DeviceIdentifier{Type: "mac", Value: "11:22:33:44:55:66"}

	_, err := f.chandler.RenewSession(context.Background(), "gw")
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionMismatch))

	assert.Equal(t, uint64(1000), f.wallet.Balance(), "nothing is minted for another device")
	assert.Equal(t, 0, f.client.paymentCount("10.0.0.1"))

	s, err := f.sessions.Get("gw")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusError, s.Status)
	assert.Equal(t, uint64(300000), s.TotalAllotment)
}

func TestRenewSessionRemovedWhilePaying(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	paid := grant(300000)
	f.client.send["10.0.0.1"] = func(payment *nostr.Event) (*tollgate_protocol.SessionResponse, error) {
		f.sessions.Remove("gw")
		return paid(payment)
	}

	_, err := f.chandler.RenewSession(context.Background(), "gw")
	ce := chandlerError(t, err)
	assert.Equal(t, "renewal-lost", ce.Code)
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionNotFound))
	assert.Equal(t, uint64(700), f.wallet.Balance())

	var logged *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			logged = entry
		}
	}
	require.NotNil(t, logged, "the lost payment is logged as an error")
	assert.Equal(t, uint64(300), logged.Data["amount"])
	assert.Equal(t, testMint, logged.Data["mint"])
}

func TestRenewUnknownSession(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.chandler.RenewSession(context.Background(), "missing")
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionNotFound))
}

func TestRenewExpiredSessionRefused(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	f.chandler.Disconnect()

	_, err := f.chandler.RenewSession(context.Background(), "gw")
	assert.Error(t, err)
	assert.Zero(t, f.client.paymentCount("10.0.0.1"))
}

func TestSweepRenewsDueSessionsIndependently(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw-a"), "10.0.0.1", "", 300000)
	insertSession(t, f, timeAdvertisement("gw-b"), "10.0.1.1", "", 300000)
	_, err := f.sessions.Update("gw-a", func(s *upstream_session_manager.UpstreamSession) error {
		s.UpdateUsage(250000)
		return nil
	})
	require.NoError(t, err)
	_, err = f.sessions.Update("gw-b", func(s *upstream_session_manager.UpstreamSession) error {
		s.UpdateUsage(250000)
		return nil
	})
	require.NoError(t, err)
	f.client.send["10.0.0.1"] = reject("mint offline")

	f.chandler.Sweep(context.Background())

	a, err := f.sessions.Get("gw-a")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusError, a.Status)

	b, err := f.sessions.Get("gw-b")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusActive, b.Status)
	assert.Equal(t, uint64(2), b.PaymentCount)

	// The failed session waits for a manual renewal
	f.chandler.Sweep(context.Background())
	assert.Equal(t, 1, f.client.paymentCount("10.0.0.1"))
}

func TestSweepFailsStalledRenewal(t *testing.T) {
	f := newFixture(t, 1000)
	s := insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	started := time.Now().Add(-time.Hour)
	s.Status = upstream_session_manager.StatusRenewing
	s.RenewalStartedAt = &started
	f.sessions.Insert(s)

	f.chandler.Sweep(context.Background())

	got, err := f.sessions.Get("gw")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusError, got.Status)
	assert.Equal(t, "renewal stalled", got.ErrorReason)
}

func TestSweepCleansUpExpiredSessions(t *testing.T) {
	f := newFixture(t, 1000)
	s := insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	s.SessionExpiry = time.Now().Add(-time.Minute)
	f.sessions.Insert(s)
	insertSession(t, f, timeAdvertisement("gw-live"), "10.0.1.1", "", 300000)

	f.chandler.Sweep(context.Background())

	_, err := f.sessions.Get("gw")
	assert.True(t, errors.Is(err, upstream_session_manager.ErrSessionNotFound))
	_, err = f.sessions.Get("gw-live")
	assert.NoError(t, err)
}

func TestRunSweepsOnlyWithAutoPay(t *testing.T) {
	f := newFixture(t, 1000)
	f.config.SweepInterval = 10 * time.Millisecond
	f.chandler.SetAutoPay(false)
	insertSession(t, f, timeAdvertisement("gw"), "10.0.0.1", "", 300000)
	_, err := f.sessions.Update("gw", func(s *upstream_session_manager.UpstreamSession) error {
		s.UpdateUsage(290000)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.chandler.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.client.paymentCount("10.0.0.1"))

	f.chandler.SetAutoPay(true)
	assert.Eventually(t, func() bool {
		return f.client.paymentCount("10.0.0.1") > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestHandleUpstreamTollgate(t *testing.T) {
	f := newFixture(t, 1000)
	event := signedAdvertisementEvent(t, timeAdvertisement(""))
	upstream := &UpstreamTollgate{
		InterfaceName: "wlan0",
		GatewayIP:     "192.168.1.1",
		Advertisement: event,
		DiscoveredAt:  time.Now(),
	}

	f.chandler.SetAutoPay(false)
	assert.ErrorIs(t, f.chandler.HandleUpstreamTollgate(upstream), ErrAutoPayDisabled)
	assert.Zero(t, f.client.paymentCount("192.168.1.1"))

	f.chandler.SetAutoPay(true)
	require.NoError(t, f.chandler.HandleUpstreamTollgate(upstream))

	session, err := f.sessions.Get(event.PubKey)
	require.NoError(t, err)
	assert.Equal(t, "wlan0", session.InterfaceName)
	assert.Equal(t, "192.168.1.1", session.GatewayAddress)
}

func TestHandleUpstreamTollgateInvalidAdvertisement(t *testing.T) {
	f := newFixture(t, 1000)
	event := &nostr.Event{Kind: 1, CreatedAt: nostr.Now()}
	require.NoError(t, event.Sign(nostr.GeneratePrivateKey()))

	err := f.chandler.HandleUpstreamTollgate(&UpstreamTollgate{InterfaceName: "wlan0", GatewayIP: "192.168.1.1", Advertisement: event})
	assert.Equal(t, ErrorTypeDiscovery, chandlerError(t, err).Type)
}

func TestHandleDisconnect(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, timeAdvertisement("gw-wifi"), "192.168.1.1", "wlan0", 300000)
	insertSession(t, f, timeAdvertisement("gw-wired"), "10.0.0.1", "eth0", 300000)

	require.NoError(t, f.chandler.HandleDisconnect("wlan0"))

	wifi, _ := f.sessions.Get("gw-wifi")
	wired, _ := f.sessions.Get("gw-wired")
	assert.Equal(t, upstream_session_manager.StatusExpired, wifi.Status)
	assert.Equal(t, upstream_session_manager.StatusActive, wired.Status)

	assert.Equal(t, 1, f.chandler.Disconnect())
	assert.Empty(t, f.sessions.ActiveSessions())
}

func TestReportDataUsage(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, dataAdvertisement("gw-data"), "10.0.0.1", "wlan0", 10*1024*1024)
	insertSession(t, f, timeAdvertisement("gw-time"), "10.0.1.1", "eth0", 300000)

	require.NoError(t, f.chandler.ReportDataUsage("gw-data", 1024*1024))
	s, _ := f.sessions.Get("gw-data")
	assert.Equal(t, uint64(1024*1024), s.CurrentUsage)

	require.NoError(t, f.chandler.ReportDataUsage("gw-data", ^uint64(0)))
	s, _ = f.sessions.Get("gw-data")
	assert.Equal(t, s.TotalAllotment, s.CurrentUsage)
	assert.Equal(t, upstream_session_manager.StatusExpired, s.Status)

	assert.True(t, errors.Is(f.chandler.ReportDataUsage("gw-time", 10), ErrNotDataSession))
	assert.True(t, errors.Is(f.chandler.ReportDataUsage("missing", 10), upstream_session_manager.ErrSessionNotFound))
}

func TestDataUsageTrackerPoll(t *testing.T) {
	f := newFixture(t, 1000)
	insertSession(t, f, dataAdvertisement("gw"), "10.0.0.1", "wlan0", 10*1024*1024)
	counter := &fakeCounter{values: map[string]uint64{"wlan0": 1000}}
	tracker := NewDataUsageTracker(f.chandler, counter, time.Second)

	usage := func() uint64 {
		s, err := f.sessions.Get("gw")
		require.NoError(t, err)
		return s.CurrentUsage
	}

	tracker.Poll()
	assert.Zero(t, usage(), "first sample is only a baseline")

	counter.set("wlan0", 1000+2*1024*1024)
	tracker.Poll()
	assert.Equal(t, uint64(2*1024*1024), usage())

	counter.set("wlan0", 500)
	tracker.Poll()
	assert.Equal(t, uint64(2*1024*1024), usage(), "counter reset is not billed")

	counter.set("wlan0", 500+1024*1024)
	tracker.Poll()
	assert.Equal(t, uint64(3*1024*1024), usage())
}

func TestRestoreState(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.chandler.StartSession(context.Background(), "10.0.0.1", timeAdvertisement("gw"))
	require.NoError(t, err)

	other := newFixture(t, 0)
	require.NoError(t, other.chandler.RestoreState(f.store.data))

	restored, err := other.sessions.Get("gw")
	require.NoError(t, err)
	assert.Equal(t, upstream_session_manager.StatusActive, restored.Status)
	assert.Equal(t, uint64(300000), restored.TotalAllotment)
}

func TestValidateBudgetConstraints(t *testing.T) {
	option := tollgate_protocol.PricingOption{AssetType: "cashu", PricePerStep: 1, PriceUnit: "sat", MintURL: testMint, MinSteps: 1}

	// 1 sat per 60s step is well under 0.01 sat/ms
	assert.NoError(t, ValidateBudgetConstraints(option, tollgate_protocol.MetricTime, 60000, 0.01, 0.001))

	err := ValidateBudgetConstraints(option, tollgate_protocol.MetricTime, 10, 0.01, 0.001)
	assert.Equal(t, "price-too-high", chandlerError(t, err).Code)

	err = ValidateBudgetConstraints(option, tollgate_protocol.MetricData, 0, 0.01, 0.001)
	assert.Equal(t, "invalid-step-size", chandlerError(t, err).Code)

	err = ValidateBudgetConstraints(option, "furlongs", 1000, 0.01, 0.001)
	assert.Equal(t, "unsupported-metric", chandlerError(t, err).Code)
}

func TestEligibleOptions(t *testing.T) {
	ad := timeAdvertisement("gw")
	ad.PricingOptions = append(ad.PricingOptions,
		tollgate_protocol.PricingOption{AssetType: "cashu", PricePerStep: 2, PriceUnit: "sat", MintURL: "https://other.mint", MinSteps: 500},
	)

	options, err := eligibleOptions(ad, 300, 1, 1)
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, testMint, options[0].MintURL)

	_, err = eligibleOptions(ad, 10, 1, 1)
	assert.Equal(t, "no-eligible-option", chandlerError(t, err).Code)
}

func TestTrustPolicy(t *testing.T) {
	assert.NoError(t, ValidateTrustPolicy("test-pubkey", nil, nil, "trust_all"))
	assert.NoError(t, ValidateTrustPolicy("test-pubkey", nil, nil, ""))
	assert.Error(t, ValidateTrustPolicy("test-pubkey", nil, nil, "trust_none"))
	assert.Error(t, ValidateTrustPolicy("blocked-pubkey", nil, []string{"blocked-pubkey"}, "trust_all"))
	assert.NoError(t, ValidateTrustPolicy("friend", []string{"friend"}, nil, "trust_none"))
	assert.Error(t, ValidateTrustPolicy("stranger", []string{"friend"}, nil, "trust_all"))
	assert.Error(t, ValidateTrustPolicy("test-pubkey", nil, nil, "sometimes"))
}
