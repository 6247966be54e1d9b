package cli

import "time"

// CLIMessage represents communication between CLI client and service
type CLIMessage struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Flags     map[string]string `json:"flags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CLIResponse represents a response from the service
type CLIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WalletInfo represents wallet information
type WalletInfo struct {
	Balance      uint64            `json:"balance_sats"`
	MintBalances map[string]uint64 `json:"mint_balances"`
}

// SessionInfo is one upstream session as shown by `sessions list`
type SessionInfo struct {
	GatewayIdentity string    `json:"gateway_identity"`
	GatewayNpub     string    `json:"gateway_npub,omitempty"`
	GatewayAddress  string    `json:"gateway_address"`
	Interface       string    `json:"interface,omitempty"`
	Status          string    `json:"status"`
	ErrorReason     string    `json:"error_reason,omitempty"`
	Metric          string    `json:"metric"`
	Allotment       uint64    `json:"allotment"`
	Usage           uint64    `json:"usage"`
	UsagePercent    float64   `json:"usage_percent"`
	Remaining       string    `json:"remaining"`
	Expiry          time.Time `json:"expiry"`
	TotalSpent      uint64    `json:"total_spent"`
	PaymentCount    uint64    `json:"payment_count"`
}

// ServiceStatus represents basic service status
type ServiceStatus struct {
	Running        bool   `json:"running"`
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	ConfigOK       bool   `json:"config_ok"`
	WalletOK       bool   `json:"wallet_ok"`
	AutoPay        bool   `json:"auto_pay"`
	ActiveSessions int    `json:"active_sessions"`
	TotalSessions  int    `json:"total_sessions"`
}
