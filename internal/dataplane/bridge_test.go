package dataplane

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/routing"
)

type fakeDriver struct {
	mu       sync.Mutex
	applied  map[string]RouteUpdate
	withdrawn []string
	failNext bool
	healthy  bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{applied: make(map[string]RouteUpdate), healthy: true}
}

func (f *fakeDriver) AddPeer(ctx context.Context, nodeID, endpoint string) error { return nil }
func (f *fakeDriver) RemovePeer(ctx context.Context, nodeID string) error       { return nil }

func (f *fakeDriver) ApplyRoute(ctx context.Context, update RouteUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("simulated failure")
	}
	f.applied[update.Destination] = update
	return nil
}

func (f *fakeDriver) WithdrawRoute(ctx context.Context, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.applied, destination)
	f.withdrawn = append(f.withdrawn, destination)
	return nil
}

func (f *fakeDriver) IsHealthy() bool { return f.healthy }
func (f *fakeDriver) Status() Status  { return Status{Healthy: f.healthy} }

func TestBridge_AppliesMultiHopRoute(t *testing.T) {
	d := newFakeDriver()
	b := NewBridge(d, zap.NewNop())

	table := routing.Table{
		"dest-c": {Destination: "dest-c", NextHop: "peer-b", Path: []string{"self", "peer-b", "dest-c"}, CostMs: 15},
	}
	b.Reconcile(context.Background(), table, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.applied["dest-c"]; !ok {
		t.Fatalf("expected dest-c applied")
	}
}

func TestBridge_SkipsDirectPeer(t *testing.T) {
	d := newFakeDriver()
	b := NewBridge(d, zap.NewNop())

	table := routing.Table{
		"peer-b": {Destination: "peer-b", NextHop: "peer-b", Path: []string{"self", "peer-b"}, CostMs: 5},
	}
	b.Reconcile(context.Background(), table, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.applied) != 0 {
		t.Fatalf("expected no driver calls for a direct peer, got %v", d.applied)
	}
}

func TestBridge_WithdrawsRemovedDestination(t *testing.T) {
	d := newFakeDriver()
	b := NewBridge(d, zap.NewNop())

	table := routing.Table{
		"dest-c": {Destination: "dest-c", NextHop: "peer-b", Path: []string{"self", "peer-b", "dest-c"}, CostMs: 15},
	}
	b.Reconcile(context.Background(), table, nil)
	b.Reconcile(context.Background(), routing.Table{}, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.applied) != 0 {
		t.Fatalf("expected dest-c withdrawn, applied=%v", d.applied)
	}
	if len(d.withdrawn) != 1 || d.withdrawn[0] != "dest-c" {
		t.Fatalf("expected dest-c in withdrawn list, got %v", d.withdrawn)
	}
}

func TestBridge_ReAppliesOnMetricsChangeAlone(t *testing.T) {
	d := newFakeDriver()
	b := NewBridge(d, zap.NewNop())

	table := routing.Table{
		"dest-c": {Destination: "dest-c", NextHop: "peer-b", Path: []string{"self", "peer-b", "dest-c"}, CostMs: 15},
	}
	metrics := map[string]MetricsSample{"dest-c": {LatencyMs: 10, HasLatency: true}}
	b.Reconcile(context.Background(), table, metrics)

	d.mu.Lock()
	if got := d.applied["dest-c"].Metrics.LatencyMs; got != 10 {
		t.Fatalf("expected first apply to carry latency 10, got %v", got)
	}
	d.mu.Unlock()

	// Same route, no driver call expected: nothing changed.
	b.Reconcile(context.Background(), table, metrics)

	// Route unchanged, but OWL metrics moved: the driver must see the
	// refreshed reading even though next hop/cost/path are identical.
	metrics["dest-c"] = MetricsSample{LatencyMs: 25, HasLatency: true}
	b.Reconcile(context.Background(), table, metrics)

	d.mu.Lock()
	defer d.mu.Unlock()
	if got := d.applied["dest-c"].Metrics.LatencyMs; got != 25 {
		t.Fatalf("expected re-applied latency 25, got %v", got)
	}
}

func TestBridge_BacksOffAfterFailure(t *testing.T) {
	d := newFakeDriver()
	d.failNext = true
	b := NewBridge(d, zap.NewNop())

	table := routing.Table{
		"dest-c": {Destination: "dest-c", NextHop: "peer-b", Path: []string{"self", "peer-b", "dest-c"}, CostMs: 15},
	}
	b.Reconcile(context.Background(), table, nil)

	d.mu.Lock()
	if _, ok := d.applied["dest-c"]; ok {
		t.Fatalf("expected first attempt to fail")
	}
	d.mu.Unlock()

	// Immediately retrying should be suppressed by the backoff window.
	b.Reconcile(context.Background(), table, nil)
	d.mu.Lock()
	if _, ok := d.applied["dest-c"]; ok {
		t.Fatalf("expected retry suppressed during backoff window")
	}
	d.mu.Unlock()

	time.Sleep(time.Millisecond)
	b.applied["dest-c"] = destState{nextRetry: time.Now().Add(-time.Millisecond)}
	b.Reconcile(context.Background(), table, nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.applied["dest-c"]; !ok {
		t.Fatalf("expected retry to succeed once backoff elapsed")
	}
}
