package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/OpenTollGate/tollgate-client-go/src/upstream_session_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSocketPath = "/var/run/tollgate-client.sock"
	SocketPermissions = 0660

	renewTimeout = time.Minute
)

var cliLogger = logrus.WithField("module", "cli")

// SessionController is the part of the chandler the control socket drives
type SessionController interface {
	Sessions() []*upstream_session_manager.UpstreamSession
	RenewSession(ctx context.Context, gatewayIdentity string) (*upstream_session_manager.UpstreamSession, error)
	Disconnect() int
	SetAutoPay(enabled bool)
	AutoPayEnabled() bool
}

// Wallet is the read and fund side of the client wallet
type Wallet interface {
	GetBalance() uint64
	AcceptedMints() []string
	GetBalanceByMint(mintURL string) uint64
	Receive(token string) (uint64, error)
}

// AutoPayStore persists the auto-pay setting across restarts
type AutoPayStore interface {
	SetAutoPay(enabled bool) error
}

// CLIServer handles Unix socket communication for CLI commands
type CLIServer struct {
	socketPath string
	sessions   SessionController
	wallet     Wallet
	config     AutoPayStore
	startTime  time.Time
	listener   net.Listener
	running    atomic.Bool
}

// NewCLIServer creates a new CLI server instance. config may be nil, in
// which case auto-pay changes last until restart.
func NewCLIServer(socketPath string, sessions SessionController, wallet Wallet, config AutoPayStore) *CLIServer {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &CLIServer{
		socketPath: socketPath,
		sessions:   sessions,
		wallet:     wallet,
		config:     config,
		startTime:  time.Now(),
	}
}

// Start begins listening on the Unix socket
func (s *CLIServer) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	if err := os.Chmod(s.socketPath, SocketPermissions); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	cliLogger.WithField("socket_path", s.socketPath).Info("CLI server started")

	go s.acceptConnections()

	return nil
}

// Stop shuts down the CLI server
func (s *CLIServer) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)

	cliLogger.Info("CLI server stopped")
	return nil
}

func (s *CLIServer) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			cliLogger.WithError(err).Error("Failed to accept connection")
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection processes a single newline-terminated JSON request
func (s *CLIServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Cashu tokens can be long
	reader := bufio.NewReaderSize(conn, 8192)

	data, err := reader.ReadBytes('\n')
	if err != nil {
		cliLogger.WithError(err).Error("Failed to read from connection")
		return
	}
	data = data[:len(data)-1]

	cliLogger.WithField("data_length", len(data)).Debug("Received CLI message")

	var msg CLIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cliLogger.WithError(err).Error("Failed to unmarshal CLI message")
		s.sendResponse(conn, failure("Invalid JSON: %v", err))
		return
	}

	s.sendResponse(conn, s.processCommand(msg))
}

// processCommand executes the CLI command and returns a response
func (s *CLIServer) processCommand(msg CLIMessage) CLIResponse {
	cliLogger.WithFields(logrus.Fields{
		"command": msg.Command,
		"args":    len(msg.Args),
	}).Debug("Processing CLI command")

	switch msg.Command {
	case "sessions":
		return s.handleSessionsCommand(msg.Args)
	case "autopay":
		return s.handleAutoPayCommand(msg.Args)
	case "wallet":
		return s.handleWalletCommand(msg.Args)
	case "status":
		return s.handleStatusCommand()
	case "version":
		return s.handleVersionCommand()
	default:
		return failure("Unknown command: %s", msg.Command)
	}
}

func (s *CLIServer) handleSessionsCommand(args []string) CLIResponse {
	if s.sessions == nil {
		return failure("Session manager not available")
	}
	if len(args) == 0 {
		return failure("Sessions command requires an action (list, renew, expire-all)")
	}

	switch args[0] {
	case "list":
		return s.handleSessionsList()
	case "renew":
		if len(args) < 2 {
			return failure("Renew requires a gateway pubkey (hex or npub)")
		}
		return s.handleSessionRenew(args[1])
	case "expire-all":
		expired := s.sessions.Disconnect()
		return success(map[string]int{"expired": expired}, "Expired %d upstream sessions", expired)
	default:
		return failure("Unknown sessions action: %s (supported: list, renew, expire-all)", args[0])
	}
}

func (s *CLIServer) handleSessionsList() CLIResponse {
	sessions := s.sessions.Sessions()
	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, sessionInfo(session))
	}

	return success(infos, "%d upstream sessions", len(infos))
}

func (s *CLIServer) handleSessionRenew(gateway string) CLIResponse {
	gatewayIdentity, err := resolveGatewayIdentity(gateway)
	if err != nil {
		return failure("Invalid gateway: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()

	session, err := s.sessions.RenewSession(ctx, gatewayIdentity)
	if err != nil {
		cliLogger.WithError(err).WithField("upstream_pubkey", utils.ShortKey(gatewayIdentity)).Warn("Manual renewal failed")
		return failure("Renewal failed: %v", err)
	}

	cliLogger.WithField("upstream_pubkey", utils.ShortKey(gatewayIdentity)).Info("Manual renewal succeeded")
	return success(sessionInfo(session), "Session with %s renewed", utils.ShortKey(gatewayIdentity))
}

func (s *CLIServer) handleAutoPayCommand(args []string) CLIResponse {
	if s.sessions == nil {
		return failure("Session manager not available")
	}
	if len(args) == 0 {
		return failure("Autopay command requires an action (on, off, status)")
	}

	var enabled bool
	switch args[0] {
	case "status":
		return success(map[string]bool{"auto_pay": s.sessions.AutoPayEnabled()}, "Auto-pay is %s", onOff(s.sessions.AutoPayEnabled()))
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return failure("Unknown autopay action: %s (supported: on, off, status)", args[0])
	}

	s.sessions.SetAutoPay(enabled)
	if s.config != nil {
		if err := s.config.SetAutoPay(enabled); err != nil {
			cliLogger.WithError(err).Error("Failed to persist auto-pay setting")
			return failure("Auto-pay is %s but could not be saved: %v", onOff(enabled), err)
		}
	}

	return success(map[string]bool{"auto_pay": enabled}, "Auto-pay turned %s", onOff(enabled))
}

func (s *CLIServer) handleWalletCommand(args []string) CLIResponse {
	if s.wallet == nil {
		return failure("Wallet not available")
	}
	if len(args) == 0 {
		return failure("Wallet command requires an action (balance, fund)")
	}

	switch args[0] {
	case "balance":
		return s.handleWalletBalance()
	case "fund":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return failure("Fund command requires a cashu token argument")
		}
		return s.handleWalletFund(strings.TrimSpace(args[1]))
	default:
		return failure("Unknown wallet action: %s (supported: balance, fund)", args[0])
	}
}

func (s *CLIServer) handleWalletBalance() CLIResponse {
	info := WalletInfo{
		Balance:      s.wallet.GetBalance(),
		MintBalances: make(map[string]uint64),
	}
	for _, mint := range s.wallet.AcceptedMints() {
		info.MintBalances[mint] = s.wallet.GetBalanceByMint(mint)
	}

	return success(info, "Total wallet balance: %d sats", info.Balance)
}

func (s *CLIServer) handleWalletFund(token string) CLIResponse {
	cliLogger.WithField("token_length", len(token)).Debug("Attempting to fund wallet")

	amount, err := s.wallet.Receive(token)
	if err != nil {
		cliLogger.WithError(err).Error("Failed to fund wallet")
		return failure("Failed to fund wallet: %v", err)
	}

	cliLogger.WithField("amount", amount).Info("Successfully funded wallet")
	return success(map[string]uint64{"amount_received": amount}, "Successfully funded wallet with %d sats", amount)
}

func (s *CLIServer) handleStatusCommand() CLIResponse {
	status := ServiceStatus{
		Running:  true,
		Version:  GetVersionInfo(),
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		ConfigOK: s.config != nil,
		WalletOK: s.wallet != nil,
	}
	if s.sessions != nil {
		status.AutoPay = s.sessions.AutoPayEnabled()
		for _, session := range s.sessions.Sessions() {
			status.TotalSessions++
			if session.IsActive() {
				status.ActiveSessions++
			}
		}
	}

	return success(status, "Service status retrieved")
}

func (s *CLIServer) handleVersionCommand() CLIResponse {
	return CLIResponse{
		Success:   true,
		Message:   GetFormattedVersionInfo(),
		Data:      GetFullVersionInfo(),
		Timestamp: time.Now(),
	}
}

func (s *CLIServer) sendResponse(conn net.Conn, response CLIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		cliLogger.WithError(err).Error("Failed to marshal response")
		return
	}

	if _, err := conn.Write(append(data, '\n')); err != nil {
		cliLogger.WithError(err).Debug("Failed to write response")
	}
}

func sessionInfo(s *upstream_session_manager.UpstreamSession) SessionInfo {
	info := SessionInfo{
		GatewayIdentity: s.GatewayIdentity,
		GatewayAddress:  s.GatewayAddress,
		Interface:       s.InterfaceName,
		Status:          s.Status.String(),
		ErrorReason:     s.ErrorReason,
		Metric:          string(s.Metric()),
		Allotment:       s.TotalAllotment,
		Usage:           s.CurrentUsage,
		UsagePercent:    s.UsagePercentage() * 100,
		Expiry:          s.SessionExpiry,
		TotalSpent:      s.TotalSpent,
		PaymentCount:    s.PaymentCount,
	}
	if npub, err := nip19.EncodePublicKey(s.GatewayIdentity); err == nil {
		info.GatewayNpub = npub
	}

	switch s.Metric() {
	case tollgate_protocol.MetricTime:
		info.Remaining = utils.MillisecondsToHumanReadable(uint64(s.RemainingTime().Milliseconds()))
	case tollgate_protocol.MetricData:
		info.Remaining = utils.BytesToHumanReadable(s.RemainingData())
	}
	return info
}

// resolveGatewayIdentity accepts a hex pubkey or an npub
func resolveGatewayIdentity(gateway string) (string, error) {
	if !strings.HasPrefix(gateway, "npub1") {
		return gateway, nil
	}

	prefix, value, err := nip19.Decode(gateway)
	if err != nil {
		return "", err
	}
	if prefix != "npub" {
		return "", fmt.Errorf("expected npub, got %s", prefix)
	}
	pubkey, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected npub payload")
	}
	return pubkey, nil
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func success(data interface{}, format string, args ...interface{}) CLIResponse {
	return CLIResponse{
		Success:   true,
		Message:   fmt.Sprintf(format, args...),
		Data:      data,
		Timestamp: time.Now(),
	}
}

func failure(format string, args ...interface{}) CLIResponse {
	return CLIResponse{
		Success:   false,
		Error:     fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}
