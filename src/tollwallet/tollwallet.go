package tollwallet

import (
	"fmt"

	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/Origami74/gonuts-tollgate/cashu"
	"github.com/Origami74/gonuts-tollgate/wallet"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "tollwallet")

// TollWallet is the customer's Cashu wallet. It holds proofs for every
// accepted mint and produces exact-value tokens to pay gateways with.
type TollWallet struct {
	wallet        *wallet.Wallet
	acceptedMints []string
}

// New loads (or creates) the wallet database under walletPath
func New(walletPath string, acceptedMints []string) (*TollWallet, error) {
	if len(acceptedMints) < 1 {
		return nil, fmt.Errorf("no mints provided, the wallet requires at least 1 accepted mint")
	}

	mints := make([]string, 0, len(acceptedMints))
	for _, mint := range acceptedMints {
		mints = append(mints, utils.NormalizeMintURL(mint))
	}

	config := wallet.Config{WalletPath: walletPath, CurrentMintURL: mints[0]}
	cashuWallet, err := wallet.LoadWallet(config)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	return &TollWallet{
		wallet:        cashuWallet,
		acceptedMints: mints,
	}, nil
}

// AcceptedMints lists the mints this wallet holds funds for
func (w *TollWallet) AcceptedMints() []string {
	return append([]string(nil), w.acceptedMints...)
}

// Receive redeems an encoded token into the wallet, e.g. to top it up.
// Tokens from mints outside the accepted list are refused.
func (w *TollWallet) Receive(encoded string) (uint64, error) {
	token, err := cashu.DecodeToken(encoded)
	if err != nil {
		return 0, fmt.Errorf("failed to decode token: %w", err)
	}

	mint := utils.NormalizeMintURL(token.Mint())
	if !contains(w.acceptedMints, mint) {
		return 0, fmt.Errorf("token rejected, mint %s is not accepted by this wallet", mint)
	}

	amount, err := w.wallet.Receive(token, false)
	if err != nil {
		return 0, fmt.Errorf("failed to receive token from %s: %w", mint, err)
	}

	logger.WithFields(logrus.Fields{"mint": mint, "amount": amount}).Info("Received token")
	return amount, nil
}

// SendExact produces a serialized token worth exactly amount from mintURL.
// Fees are not added on top, so the gateway receives precisely what was priced.
func (w *TollWallet) SendExact(amount uint64, mintURL string) (string, error) {
	mintURL = utils.NormalizeMintURL(mintURL)

	proofs, err := w.wallet.Send(amount, mintURL, false)
	if err != nil {
		return "", fmt.Errorf("failed to send %d from %s: %w", amount, mintURL, err)
	}
	if len(proofs) == 0 {
		return "", fmt.Errorf("wallet returned no proofs for %d from %s", amount, mintURL)
	}

	var total uint64
	for _, proof := range proofs {
		total += proof.Amount
	}
	if total != amount {
		// Put the proofs back before failing so nothing is lost
		if token, tokErr := cashu.NewTokenV4(proofs, mintURL, cashu.Sat, true); tokErr == nil {
			if _, recvErr := w.wallet.Receive(token, false); recvErr != nil {
				logger.WithError(recvErr).Error("Failed to reclaim proofs after inexact send")
			}
		}
		return "", fmt.Errorf("wallet produced %d instead of exactly %d", total, amount)
	}

	token, err := cashu.NewTokenV4(proofs, mintURL, cashu.Sat, true)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	serialized, err := token.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"mint":   mintURL,
		"amount": amount,
		"proofs": len(proofs),
	}).Debug("Created payment token")

	return serialized, nil
}

// GetBalance returns the total balance across all mints
func (w *TollWallet) GetBalance() uint64 {
	return w.wallet.GetBalance()
}

// GetBalanceByMint returns the balance held at a single mint
func (w *TollWallet) GetBalanceByMint(mintURL string) uint64 {
	mintURL = utils.NormalizeMintURL(mintURL)
	for mint, balance := range w.wallet.GetBalanceByMints() {
		if utils.NormalizeMintURL(mint) == mintURL {
			return balance
		}
	}
	return 0
}

// ForMint returns a handle that spends only from mintURL
func (w *TollWallet) ForMint(mintURL string) *MintHandle {
	return &MintHandle{wallet: w, mintURL: utils.NormalizeMintURL(mintURL)}
}

func (w *TollWallet) ParseToken(token string) (cashu.Token, error) {
	return cashu.DecodeToken(token)
}

// MintHandle scopes a TollWallet to one mint
type MintHandle struct {
	wallet  *TollWallet
	mintURL string
}

func (h *MintHandle) MintURL() string {
	return h.mintURL
}

func (h *MintHandle) Balance() uint64 {
	return h.wallet.GetBalanceByMint(h.mintURL)
}

func (h *MintHandle) SendExact(amount uint64) (string, error) {
	return h.wallet.SendExact(amount, h.mintURL)
}

func (h *MintHandle) Receive(token string) (uint64, error) {
	return h.wallet.Receive(token)
}

func contains(slice []string, str string) bool {
	for _, item := range slice {
		if item == str {
			return true
		}
	}
	return false
}
