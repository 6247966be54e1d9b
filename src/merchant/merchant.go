package merchant

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "merchant")

var (
	ErrNoAffordableOption = errors.New("no affordable pricing option")
	ErrUnknownMint        = errors.New("no wallet for mint")
	ErrBelowMinSteps      = errors.New("purchase is below the minimum steps")
)

// InsufficientFundsError reports a spend the wallet cannot cover
type InsufficientFundsError struct {
	MintURL   string
	Needed    uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds at %s: need %d, have %d", e.MintURL, e.Needed, e.Available)
}

// MintWallet is the spending capability for a single mint
type MintWallet interface {
	Balance() uint64
	SendExact(amount uint64) (string, error)
	Receive(token string) (uint64, error)
}

// PaymentToken is a spendable token together with what it is worth
type PaymentToken struct {
	Token   string `json:"token"`
	Amount  uint64 `json:"amount"`
	Unit    string `json:"unit"`
	MintURL string `json:"mint_url"`
	Steps   uint64 `json:"steps"`
}

// Merchant decides how to pay a gateway and produces the tokens to do it.
// Selecting and spending share one lock so two concurrent payments can
// never both count the same balance.
type Merchant struct {
	wallets map[string]MintWallet
	mu      sync.Mutex
}

// New creates a payment selector over one wallet per mint URL
func New(wallets map[string]MintWallet) *Merchant {
	m := &Merchant{wallets: make(map[string]MintWallet, len(wallets))}
	for mint, w := range wallets {
		m.wallets[utils.NormalizeMintURL(mint)] = w
	}
	return m
}

// CanAfford reports whether the option's mint is known and holds enough to buy steps
func (m *Merchant) CanAfford(option tollgate_protocol.PricingOption, steps uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.canAfford(option, steps)
}

// SelectBestPricingOption returns the cheapest affordable option for steps.
// Ties keep the first option in advertisement order.
func (m *Merchant) SelectBestPricingOption(options []tollgate_protocol.PricingOption, steps uint64) (tollgate_protocol.PricingOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.selectBest(options, steps)
}

// CreatePaymentToken spends exactly the cost of steps under option
func (m *Merchant) CreatePaymentToken(option tollgate_protocol.PricingOption, steps uint64) (*PaymentToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createToken(option, steps)
}

// Pay selects the cheapest affordable option and spends for it in one
// critical section.
func (m *Merchant) Pay(options []tollgate_protocol.PricingOption, steps uint64) (tollgate_protocol.PricingOption, *PaymentToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	option, err := m.selectBest(options, steps)
	if err != nil {
		return tollgate_protocol.PricingOption{}, nil, err
	}

	token, err := m.createToken(option, steps)
	if err != nil {
		return tollgate_protocol.PricingOption{}, nil, err
	}
	return option, token, nil
}

// Refund returns an unspent payment token to the wallet it came from,
// e.g. after the gateway rejected or never received the payment.
func (m *Merchant) Refund(token *PaymentToken) error {
	if token == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[utils.NormalizeMintURL(token.MintURL)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, token.MintURL)
	}

	amount, err := w.Receive(token.Token)
	if err != nil {
		return fmt.Errorf("failed to reclaim token worth %d from %s: %w", token.Amount, token.MintURL, err)
	}

	logger.WithFields(logrus.Fields{
		"mint":      token.MintURL,
		"amount":    token.Amount,
		"reclaimed": amount,
	}).Info("Reclaimed unspent payment token")
	return nil
}

// GetBalance returns the balance held at one mint
func (m *Merchant) GetBalance(mintURL string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.wallets[utils.NormalizeMintURL(mintURL)]; ok {
		return w.Balance()
	}
	return 0
}

// Balances returns the balance of every known mint
func (m *Merchant) Balances() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	balances := make(map[string]uint64, len(m.wallets))
	for mint, w := range m.wallets {
		balances[mint] = w.Balance()
	}
	return balances
}

// Mints returns the known mint URLs in sorted order
func (m *Merchant) Mints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	mints := make([]string, 0, len(m.wallets))
	for mint := range m.wallets {
		mints = append(mints, mint)
	}
	sort.Strings(mints)
	return mints
}

func (m *Merchant) canAfford(option tollgate_protocol.PricingOption, steps uint64) bool {
	w, ok := m.wallets[utils.NormalizeMintURL(option.MintURL)]
	if !ok {
		return false
	}
	cost, err := tollgate_protocol.CalculateCost(option, steps)
	if err != nil {
		return false
	}
	return w.Balance() >= cost
}

func (m *Merchant) selectBest(options []tollgate_protocol.PricingOption, steps uint64) (tollgate_protocol.PricingOption, error) {
	var (
		best     tollgate_protocol.PricingOption
		bestCost uint64
		found    bool
	)

	for _, option := range options {
		if !m.canAfford(option, steps) {
			continue
		}
		cost, _ := tollgate_protocol.CalculateCost(option, steps)
		if !found || cost < bestCost {
			best, bestCost, found = option, cost, true
		}
	}

	if !found {
		return tollgate_protocol.PricingOption{}, fmt.Errorf("%w for %d steps across %d options", ErrNoAffordableOption, steps, len(options))
	}
	return best, nil
}

func (m *Merchant) createToken(option tollgate_protocol.PricingOption, steps uint64) (*PaymentToken, error) {
	if steps < option.MinSteps {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinSteps, steps, option.MinSteps)
	}

	cost, err := tollgate_protocol.CalculateCost(option, steps)
	if err != nil {
		return nil, err
	}

	mintURL := utils.NormalizeMintURL(option.MintURL)
	w, ok := m.wallets[mintURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, option.MintURL)
	}

	if available := w.Balance(); available < cost {
		return nil, &InsufficientFundsError{MintURL: mintURL, Needed: cost, Available: available}
	}

	token, err := w.SendExact(cost)
	if err != nil {
		return nil, fmt.Errorf("failed to create token for %d %s at %s: %w", cost, option.PriceUnit, mintURL, err)
	}

	logger.WithFields(logrus.Fields{
		"mint":   mintURL,
		"amount": cost,
		"unit":   option.PriceUnit,
		"steps":  steps,
	}).Info("Created payment token")

	return &PaymentToken{
		Token:   token,
		Amount:  cost,
		Unit:    option.PriceUnit,
		MintURL: mintURL,
		Steps:   steps,
	}, nil
}
