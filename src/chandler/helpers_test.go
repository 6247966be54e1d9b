package chandler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/merchant"
	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/OpenTollGate/tollgate-client-go/src/upstream_session_manager"
	"github.com/nbd-wtf/go-nostr"
)

const testMint = "https://mint.test.com"

var testDevice = tollgate_protocol.DeviceIdentifier{Type: "mac", Value: "AA:BB:CC:DD:EE:FF"}

// memoryWallet is an in-memory MintWallet that remembers issued tokens so refunds work
type memoryWallet struct {
	mu      sync.Mutex
	balance uint64
	issued  map[string]uint64
	next    int
}

func newMemoryWallet(balance uint64) *memoryWallet {
	return &memoryWallet{balance: balance, issued: make(map[string]uint64)}
}

func (w *memoryWallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

func (w *memoryWallet) SendExact(amount uint64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount > w.balance {
		return "", errors.New("insufficient proofs")
	}
	w.balance -= amount
	w.next++
	token := fmt.Sprintf("cashuBtoken%d", w.next)
	w.issued[token] = amount
	return token, nil
}

func (w *memoryWallet) Receive(token string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	amount, ok := w.issued[token]
	if !ok {
		return 0, errors.New("token already spent")
	}
	delete(w.issued, token)
	w.balance += amount
	return amount, nil
}

// redeem marks a token as spent by the gateway and returns its value
func (w *memoryWallet) redeem(token string) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	amount, ok := w.issued[token]
	delete(w.issued, token)
	return amount, ok
}

type sendFunc func(payment *nostr.Event) (*tollgate_protocol.SessionResponse, error)

// fakeGatewayClient answers for any number of gateway addresses
type fakeGatewayClient struct {
	mu        sync.Mutex
	wallet    *memoryWallet
	device    tollgate_protocol.DeviceIdentifier
	deviceErr error
	send      map[string]sendFunc
	payments  map[string][]*nostr.Event
}

func newFakeGatewayClient(wallet *memoryWallet) *fakeGatewayClient {
	return &fakeGatewayClient{
		wallet:   wallet,
		device:   testDevice,
		send:     make(map[string]sendFunc),
		payments: make(map[string][]*nostr.Event),
	}
}

func (f *fakeGatewayClient) FetchAdvertisement(ctx context.Context, gatewayAddress string) (*tollgate_protocol.Advertisement, *nostr.Event, error) {
	return nil, nil, errors.New("not used")
}

func (f *fakeGatewayClient) FetchDeviceIdentifier(ctx context.Context, gatewayAddress string) (tollgate_protocol.DeviceIdentifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.device, f.deviceErr
}

func (f *fakeGatewayClient) SendPayment(ctx context.Context, gatewayAddress string, payment *nostr.Event, metric tollgate_protocol.Metric) (*tollgate_protocol.SessionResponse, error) {
	f.mu.Lock()
	f.payments[gatewayAddress] = append(f.payments[gatewayAddress], payment)
	send := f.send[gatewayAddress]
	f.mu.Unlock()

	if send == nil {
		send = grant(300000)
	}
	resp, err := send(payment)
	if err == nil {
		f.wallet.redeem(paymentToken(payment))
	}
	return resp, err
}

func (f *fakeGatewayClient) paymentCount(gatewayAddress string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments[gatewayAddress])
}

func (f *fakeGatewayClient) lastPayment(gatewayAddress string) *nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[gatewayAddress]
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

func grant(allotment uint64) sendFunc {
	return func(payment *nostr.Event) (*tollgate_protocol.SessionResponse, error) {
		return &tollgate_protocol.SessionResponse{
			SessionID:        "session-" + payment.ID,
			Allotment:        allotment,
			Metric:           tollgate_protocol.MetricTime,
			SessionExpiry:    time.Now().Add(time.Hour),
			DeviceIdentifier: testDevice,
		}, nil
	}
}

func reject(reason string) sendFunc {
	return func(*nostr.Event) (*tollgate_protocol.SessionResponse, error) {
		return nil, &tollgate_protocol.Error{Type: tollgate_protocol.ErrorTypePaymentRejected, Message: reason}
	}
}

func paymentToken(payment *nostr.Event) string {
	for _, tag := range payment.Tags {
		if len(tag) >= 2 && tag[0] == "payment" {
			return tag[1]
		}
	}
	return ""
}

type memoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (s *memoryStore) SaveSessionState(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fixture struct {
	chandler *Chandler
	sessions *upstream_session_manager.UpstreamSessionManager
	client   *fakeGatewayClient
	wallet   *memoryWallet
	store    *memoryStore
	config   *config_manager.ChandlerConfig
}

func newFixture(t *testing.T, balance uint64) *fixture {
	t.Helper()
	config := config_manager.NewDefaultConfig().Chandler
	config.MaxPricePerMillisecond = 1
	config.MaxPricePerByte = 1

	wallet := newMemoryWallet(balance)
	client := newFakeGatewayClient(wallet)
	sessions := upstream_session_manager.New()
	store := &memoryStore{}
	payments := merchant.New(map[string]merchant.MintWallet{testMint: wallet})

	return &fixture{
		chandler: New(&config, sessions, client, payments, store),
		sessions: sessions,
		client:   client,
		wallet:   wallet,
		store:    store,
		config:   &config,
	}
}

func timeAdvertisement(gateway string) *tollgate_protocol.Advertisement {
	return &tollgate_protocol.Advertisement{
		Metric:   tollgate_protocol.MetricTime,
		StepSize: 1000,
		PricingOptions: []tollgate_protocol.PricingOption{
			{AssetType: "cashu", PricePerStep: 1, PriceUnit: "sat", MintURL: testMint, MinSteps: 60},
		},
		GatewayIdentity: gateway,
	}
}

func dataAdvertisement(gateway string) *tollgate_protocol.Advertisement {
	return &tollgate_protocol.Advertisement{
		Metric:   tollgate_protocol.MetricData,
		StepSize: 1024 * 1024,
		PricingOptions: []tollgate_protocol.PricingOption{
			{AssetType: "cashu", PricePerStep: 1, PriceUnit: "sat", MintURL: testMint, MinSteps: 1},
		},
		GatewayIdentity: gateway,
	}
}

type fakeCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func (f *fakeCounter) set(iface string, v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[iface] = v
}

func (f *fakeCounter) InterfaceBytes(iface string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[iface]
	if !ok {
		return 0, errors.New("no such interface")
	}
	return v, nil
}
