package chandler

import (
	"context"
	"sync"
	"time"

	"github.com/OpenTollGate/tollgate-client-go/src/utils"
	"github.com/sirupsen/logrus"
)

// DataUsageTracker samples interface byte counters and reports the deltas
// to the data-metered sessions running over those interfaces.
type DataUsageTracker struct {
	chandler *Chandler
	counter  ByteCounter
	interval time.Duration

	lastBytes map[string]uint64
	mu        sync.Mutex
}

// NewDataUsageTracker creates a tracker polling counter every interval
func NewDataUsageTracker(chandler *Chandler, counter ByteCounter, interval time.Duration) *DataUsageTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DataUsageTracker{
		chandler:  chandler,
		counter:   counter,
		interval:  interval,
		lastBytes: make(map[string]uint64),
	}
}

// Run polls until ctx is done
func (d *DataUsageTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Poll()
		}
	}
}

// Poll takes one sample of every interface carrying a data session
func (d *DataUsageTracker) Poll() {
	interfaces := d.chandler.DataInterfaces()

	d.mu.Lock()
	defer d.mu.Unlock()

	active := make(map[string]struct{}, len(interfaces))
	for _, iface := range interfaces {
		active[iface] = struct{}{}

		bytes, err := d.counter.InterfaceBytes(iface)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"interface": iface,
				"error":     err,
			}).Warn("Failed to get interface bytes")
			continue
		}

		last, seen := d.lastBytes[iface]
		d.lastBytes[iface] = bytes

		// First sample is the baseline; a lower reading means the counter was reset
		if !seen || bytes < last {
			continue
		}

		delta := bytes - last
		if delta == 0 {
			continue
		}

		logger.WithFields(logrus.Fields{
			"interface": iface,
			"delta":     utils.BytesToHumanReadable(delta),
		}).Debug("Interface traffic sampled")

		d.chandler.ReportInterfaceUsage(iface, delta)
	}

	// Forget interfaces without data sessions so a new session starts from a fresh baseline
	for iface := range d.lastBytes {
		if _, ok := active[iface]; !ok {
			delete(d.lastBytes, iface)
		}
	}
}
