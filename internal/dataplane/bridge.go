package dataplane

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/routing"
)

const (
	backoffInitial = time.Second
	backoffCap     = 60 * time.Second
)

type destState struct {
	nextHop   string
	costMs    float64
	pathLen   int
	metrics   MetricsSample
	nextRetry time.Time
	backoff   time.Duration
}

// Bridge is the data-plane bridge (C6). It reconciles a routing.Table
// snapshot against what was last pushed to a DataPlaneDriver, applying
// only genuine changes, skipping destinations that are direct peers
// (no forwarding decision is needed to reach an adjacent node), and
// backing a failing destination off exponentially up to backoffCap
// before retrying it again.
type Bridge struct {
	driver DataPlaneDriver
	logger *zap.Logger

	mu      sync.Mutex
	applied map[string]destState
}

// NewBridge constructs a Bridge driving driver.
func NewBridge(driver DataPlaneDriver, logger *zap.Logger) *Bridge {
	return &Bridge{
		driver:  driver,
		logger:  logger.Named("dataplane"),
		applied: make(map[string]destState),
	}
}

// Reconcile pushes the delta between table and the last-applied state
// to the driver, attaching each destination's current OWL metrics
// (looked up by metrics[destination], zero value if absent) so the
// driver can re-advertise them alongside the forwarding decision.
// Intended to run on its own periodic tick (spec-default 10s) from the
// composite node.
func (b *Bridge) Reconcile(ctx context.Context, table routing.Table, metrics map[string]MetricsSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	destinations := make([]string, 0, len(table))
	for dest := range table {
		destinations = append(destinations, dest)
	}
	sort.Strings(destinations)

	seen := make(map[string]bool, len(destinations))
	for _, dest := range destinations {
		seen[dest] = true
		path := table[dest]

		if len(path.Path) <= 2 {
			// Direct peer: nothing to program. If we'd previously applied
			// a multi-hop route here, withdraw it now that it collapsed.
			if _, ok := b.applied[dest]; ok {
				b.withdrawLocked(ctx, dest)
			}
			continue
		}

		sample := metrics[dest]

		existing, wasApplied := b.applied[dest]
		unchanged := wasApplied && existing.nextHop == path.NextHop && existing.costMs == path.CostMs &&
			existing.pathLen == len(path.Path) && existing.metrics == sample
		if unchanged {
			continue
		}

		if wasApplied && now.Before(existing.nextRetry) {
			continue // still backing off from a prior failure
		}

		if !b.driver.IsHealthy() {
			continue
		}

		err := b.driver.ApplyRoute(ctx, RouteUpdate{
			Destination: dest,
			NextHop:     path.NextHop,
			Path:        append([]string(nil), path.Path...),
			CostMs:      path.CostMs,
			Metrics:     sample,
		})
		if err != nil {
			next := backoffInitial
			if wasApplied && existing.backoff > 0 {
				next = existing.backoff * 2
				if next > backoffCap {
					next = backoffCap
				}
			}
			b.applied[dest] = destState{nextRetry: now.Add(next), backoff: next}
			b.logger.Warn("apply route failed", zap.String("destination", dest), zap.Error(err), zap.Duration("retry_in", next))
			continue
		}

		b.applied[dest] = destState{nextHop: path.NextHop, costMs: path.CostMs, pathLen: len(path.Path), metrics: sample}
	}

	for dest := range b.applied {
		if !seen[dest] {
			b.withdrawLocked(ctx, dest)
		}
	}
}

func (b *Bridge) withdrawLocked(ctx context.Context, dest string) {
	if err := b.driver.WithdrawRoute(ctx, dest); err != nil {
		b.logger.Warn("withdraw route failed", zap.String("destination", dest), zap.Error(err))
		return
	}
	delete(b.applied, dest)
}

// AddPeer forwards peer addition to the driver.
func (b *Bridge) AddPeer(ctx context.Context, nodeID, endpoint string) error {
	return b.driver.AddPeer(ctx, nodeID, endpoint)
}

// RemovePeer forwards peer removal to the driver and drops any routes
// that were applied through it.
func (b *Bridge) RemovePeer(ctx context.Context, nodeID string) error {
	b.mu.Lock()
	for dest, st := range b.applied {
		if st.nextHop == nodeID {
			b.withdrawLocked(ctx, dest)
		}
	}
	b.mu.Unlock()
	return b.driver.RemovePeer(ctx, nodeID)
}

// Status returns the underlying driver's health status.
func (b *Bridge) Status() Status {
	return b.driver.Status()
}
