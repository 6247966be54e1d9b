package chandler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/upstream_session_manager"
	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval       = 10 * time.Second
	defaultRenewingGracePeriod = 2 * time.Minute
)

// Run sweeps on a fixed interval while auto-pay is enabled, until ctx is done
func (c *Chandler) Run(ctx context.Context) {
	interval := c.config.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval).Info("Renewal scheduler started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Renewal scheduler stopped")
			return
		case <-ticker.C:
			if c.AutoPayEnabled() {
				c.Sweep(ctx)
			}
		}
	}
}

// Sweep renews sessions past their threshold, surfaces stalled renewals,
// refreshes time-based usage, purges expired sessions and persists state.
// Every step is best effort; one failing gateway never stops the others.
func (c *Chandler) Sweep(ctx context.Context) {
	c.safeStep("renew", func() { c.renewDue(ctx) })
	c.safeStep("stalled", c.failStalledRenewals)
	c.safeStep("usage", c.sessions.UpdateTimeBasedUsage)
	c.safeStep("cleanup", func() {
		for _, s := range c.sessions.CleanupExpiredSessions() {
			logger.WithFields(logrus.Fields{
				"upstream_pubkey": utils.ShortKey(s.GatewayIdentity),
				"spent":           s.TotalSpent,
				"payments":        s.PaymentCount,
			}).Info("Upstream session ended")
		}
	})
	c.safeStep("persist", c.persist)
}

func (c *Chandler) renewDue(ctx context.Context) {
	due := c.sessions.SessionsNeedingRenewal()
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, session := range due {
		wg.Add(1)
		go func(s *upstream_session_manager.UpstreamSession) {
			defer wg.Done()
			c.safeStep("renew "+utils.ShortKey(s.GatewayIdentity), func() {
				logger.WithFields(logrus.Fields{
					"upstream_pubkey": utils.ShortKey(s.GatewayIdentity),
					"usage":           fmt.Sprintf("%.0f%%", s.UsagePercentage()*100),
				}).Info("Renewal threshold reached")

				if _, err := c.RenewSession(ctx, s.GatewayIdentity); err != nil {
					logger.WithError(err).WithField("upstream_pubkey", utils.ShortKey(s.GatewayIdentity)).Warn("Scheduled renewal failed")
				}
			})
		}(session)
	}
	wg.Wait()
}

// failStalledRenewals moves sessions stuck in Renewing past the grace period into Error
func (c *Chandler) failStalledRenewals() {
	grace := c.config.Sessions.RenewingGracePeriod
	if grace <= 0 {
		grace = defaultRenewingGracePeriod
	}

	for _, session := range c.sessions.All() {
		if !session.RenewalStalled(grace) {
			continue
		}
		_, err := c.sessions.Update(session.GatewayIdentity, func(s *upstream_session_manager.UpstreamSession) error {
			// Re-check under the lock, the renewal may have just finished
			if s.RenewalStalled(grace) {
				s.SetError("renewal stalled")
			}
			return nil
		})
		if err != nil {
			continue
		}
		logger.WithField("upstream_pubkey", utils.ShortKey(session.GatewayIdentity)).Warn("Renewal stalled, session needs manual renewal")
	}
}

func (c *Chandler) safeStep(name string, step func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"step":  name,
				"panic": r,
			}).Error("Sweep step panicked")
		}
	}()
	step()
}
