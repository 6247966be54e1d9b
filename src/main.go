package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenTollGate/tollgate-client-go/src/chandler"
	"github.com/OpenTollGate/tollgate-client-go/src/cli"
	"github.com/OpenTollGate/tollgate-client-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/crowsnest"
	"github.com/OpenTollGate/tollgate-client-go/src/merchant"
	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
	"github.com/OpenTollGate/tollgate-client-go/src/tollwallet"
	"github.com/OpenTollGate/tollgate-client-go/src/upstream_session_manager"
	"github.com/sirupsen/logrus"
)

var mainLogger = logrus.WithField("module", "main")

// daemon holds the long-lived components so shutdown can stop them in order
type daemon struct {
	configManager *config_manager.ConfigManager
	sessions      *upstream_session_manager.UpstreamSessionManager
	chandler      *chandler.Chandler
	crowsnest     crowsnest.Crowsnest
	cliServer     *cli.CLIServer
	cancel        context.CancelFunc
}

func main() {
	configPath := config_manager.ConfigPath()

	configManager, err := config_manager.NewConfigManager(configPath)
	if err != nil {
		mainLogger.WithError(err).WithField("path", configPath).Fatal("Failed to create config manager")
	}
	config := configManager.GetConfig()

	InitializeGlobalLogger(config.LogLevel)
	mainLogger.WithField("path", configPath).Info("Starting TollGate client")

	d, err := newDaemon(configManager)
	if err != nil {
		mainLogger.WithError(err).Fatal("Failed to initialize TollGate client")
	}

	if err := d.start(); err != nil {
		mainLogger.WithError(err).Fatal("Failed to start TollGate client")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	mainLogger.WithField("signal", sig.String()).Info("Shutting down TollGate client")

	d.stop()
}

func newDaemon(configManager *config_manager.ConfigManager) (*daemon, error) {
	config := configManager.GetConfig()

	wallet, err := tollwallet.New(config.Wallet.Path, config.Wallet.AcceptedMints)
	if err != nil {
		return nil, err
	}

	mintWallets := make(map[string]merchant.MintWallet)
	for _, mint := range wallet.AcceptedMints() {
		mintWallets[mint] = wallet.ForMint(mint)
	}
	mainLogger.WithFields(logrus.Fields{
		"mints":   len(mintWallets),
		"balance": wallet.GetBalance(),
	}).Info("Wallet loaded")

	sessions := upstream_session_manager.New()
	client := tollgate_protocol.NewClient(config.Chandler.RequestTimeout)
	ch := chandler.New(&config.Chandler, sessions, client, merchant.New(mintWallets), configManager)

	state, err := configManager.LoadSessionState()
	if err != nil {
		mainLogger.WithError(err).Warn("Failed to read saved sessions, starting empty")
	} else if len(state) > 0 {
		if err := ch.RestoreState(state); err != nil {
			mainLogger.WithError(err).Warn("Failed to restore saved sessions, starting empty")
		}
	}

	cn := crowsnest.NewCrowsnest(&config.Crowsnest)
	cn.SetChandler(ch)

	return &daemon{
		configManager: configManager,
		sessions:      sessions,
		chandler:      ch,
		crowsnest:     cn,
		cliServer:     cli.NewCLIServer(config.ControlSocket, ch, wallet, configManager),
	}, nil
}

func (d *daemon) start() error {
	config := d.configManager.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	go d.chandler.Run(ctx)

	tracker := chandler.NewDataUsageTracker(d.chandler, crowsnest.NewTrafficMeter(), config.Crowsnest.TrafficPollInterval)
	go tracker.Run(ctx)

	if err := d.crowsnest.Start(); err != nil {
		cancel()
		return err
	}

	// The control socket is optional; the client still pays without it
	if err := d.cliServer.Start(); err != nil {
		mainLogger.WithError(err).Warn("Failed to start CLI server")
	}

	mainLogger.WithField("auto_pay", d.chandler.AutoPayEnabled()).Info("TollGate client started")
	return nil
}

func (d *daemon) stop() {
	if err := d.cliServer.Stop(); err != nil {
		mainLogger.WithError(err).Warn("Failed to stop CLI server")
	}
	if err := d.crowsnest.Stop(); err != nil {
		mainLogger.WithError(err).Warn("Failed to stop crowsnest")
	}
	d.cancel()

	snapshot, err := d.sessions.Snapshot()
	if err != nil {
		mainLogger.WithError(err).Error("Failed to snapshot sessions")
		return
	}
	if err := d.configManager.SaveSessionState(snapshot); err != nil {
		mainLogger.WithError(err).Error("Failed to save sessions")
		return
	}

	mainLogger.WithField("sessions", len(d.sessions.All())).Info("Saved upstream sessions")
}
