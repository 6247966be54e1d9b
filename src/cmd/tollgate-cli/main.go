package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/cli"
	"github.com/spf13/cobra"
)

const commandTimeout = 90 * time.Second

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "tollgate-client",
	Short: "TollGate client CLI - Control the TollGate client service",
	Long: `TollGate client CLI provides command-line access to the running client service.
You can inspect upstream sessions, renew them by hand, toggle auto-pay and manage the wallet.`,
	SilenceUsage: true,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Upstream session operations",
	Long:  "Inspect and renew the sessions this device has bought from upstream TollGates",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upstream sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("sessions", []string{"list"})
	},
}

var sessionsRenewCmd = &cobra.Command{
	Use:   "renew [gateway-pubkey]",
	Short: "Renew a session now",
	Long:  "Pay for one more block of access from the given gateway. The gateway may be a hex pubkey or an npub.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("sessions", []string{"renew", args[0]})
	},
}

var sessionsExpireAllCmd = &cobra.Command{
	Use:   "expire-all",
	Short: "Expire every active session",
	Long:  "Mark all upstream sessions expired, e.g. after the uplink was lost. Unused allotment is not refunded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("sessions", []string{"expire-all"})
	},
}

var autoPayCmd = &cobra.Command{
	Use:   "autopay",
	Short: "Auto-pay settings",
	Long:  "Control whether newly discovered TollGates are paid automatically",
}

func autoPayAction(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommandAndDisplay("autopay", []string{action})
		},
	}
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet operations",
	Long:  "Check the ecash balance used to pay upstream TollGates and top it up",
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show wallet balance",
	Long:  "Display current wallet balance per mint in satoshis",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("wallet", []string{"balance"})
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund [token]",
	Short: "Fund wallet with a Cashu token",
	Long:  "Add funds to the wallet. The token is read from stdin when not given as an argument.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Print("Paste your Cashu token: ")
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			if !scanner.Scan() {
				return fmt.Errorf("failed to read token input")
			}
			token = scanner.Text()
		}

		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("no token provided")
		}
		return sendCommandAndDisplay("wallet", []string{"fund", token})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Long:  "Display client service status including uptime, auto-pay and session counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("status", nil)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommandAndDisplay("version", nil)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", cli.DefaultSocketPath, "Control socket of the client service")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsRenewCmd, sessionsExpireAllCmd)
	autoPayCmd.AddCommand(
		autoPayAction("on", "Pay discovered TollGates automatically"),
		autoPayAction("off", "Stop paying newly discovered TollGates"),
		autoPayAction("status", "Show whether auto-pay is on"),
	)
	walletCmd.AddCommand(balanceCmd, fundCmd)
	rootCmd.AddCommand(sessionsCmd, autoPayCmd, walletCmd, statusCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func sendCommandAndDisplay(command string, args []string) error {
	response, err := cli.SendCommand(socketPath, cli.CLIMessage{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	}, commandTimeout)
	if err != nil {
		return fmt.Errorf("%v\nMake sure the TollGate client service is running", err)
	}

	if !response.Success {
		return fmt.Errorf("%s", response.Error)
	}

	if response.Message != "" {
		fmt.Println(response.Message)
	}
	if command == "sessions" && len(args) > 0 && args[0] == "list" {
		displaySessions(response.Data)
		return nil
	}
	if command != "version" && response.Data != nil {
		displayData(response.Data)
	}
	return nil
}

func displaySessions(data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	var sessions []cli.SessionInfo
	if err := json.Unmarshal(raw, &sessions); err != nil {
		displayData(data)
		return
	}

	for _, s := range sessions {
		fmt.Println()
		name := s.GatewayNpub
		if name == "" {
			name = s.GatewayIdentity
		}
		fmt.Printf("%s (%s)\n", name, s.Status)
		fmt.Printf("  Address:   %s", s.GatewayAddress)
		if s.Interface != "" {
			fmt.Printf(" via %s", s.Interface)
		}
		fmt.Println()
		fmt.Printf("  Usage:     %d / %d %s (%.1f%%)\n", s.Usage, s.Allotment, s.Metric, s.UsagePercent)
		fmt.Printf("  Remaining: %s\n", s.Remaining)
		fmt.Printf("  Expires:   %s\n", s.Expiry.Local().Format(time.RFC1123))
		fmt.Printf("  Spent:     %d sats over %d payments\n", s.TotalSpent, s.PaymentCount)
		if s.ErrorReason != "" {
			fmt.Printf("  Error:     %s\n", s.ErrorReason)
		}
	}
}

func displayData(data interface{}) {
	switch v := data.(type) {
	case map[string]interface{}:
		displayMap(v, "")
	default:
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err == nil {
			fmt.Println(string(jsonData))
		}
	}
}

func displayMap(m map[string]interface{}, prefix string) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := m[key].(type) {
		case map[string]interface{}:
			fmt.Printf("%s%s:\n", prefix, key)
			displayMap(v, prefix+"  ")
		default:
			fmt.Printf("%s%s: %v\n", prefix, key, v)
		}
	}
}
