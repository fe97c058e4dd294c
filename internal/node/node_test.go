package node

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/config"
	"github.com/route-beacon/ddarp/internal/dataplane"
	"github.com/route-beacon/ddarp/internal/topology"
)

type nopDriver struct{}

func (nopDriver) AddPeer(ctx context.Context, nodeID, endpoint string) error { return nil }
func (nopDriver) RemovePeer(ctx context.Context, nodeID string) error       { return nil }
func (nopDriver) ApplyRoute(ctx context.Context, update dataplane.RouteUpdate) error {
	return nil
}
func (nopDriver) WithdrawRoute(ctx context.Context, destination string) error { return nil }
func (nopDriver) IsHealthy() bool                                            { return true }
func (nopDriver) Status() dataplane.Status                                   { return dataplane.Status{Healthy: true} }

func testConfig(nodeID string, port uint16) *config.Config {
	return &config.Config{
		Node: config.NodeConfig{NodeID: nodeID, NodeType: "regular"},
		OWL: config.OWLConfig{
			Port:           port,
			SharedSecret:   "test-secret",
			ProbeIntervalS: 0.02,
			ProbeTimeoutS:  0.2,
			MetricWindowS:  30,
			HistoryDepth:   100,
		},
		Routing: config.RoutingConfig{
			HysteresisThreshold: 0.20,
			RouteFreshnessS:     120,
		},
	}
}

func TestNode_StartStopLifecycle(t *testing.T) {
	n := New(testConfig("node-a", 31901), nopDriver{}, zap.NewNop())
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	if !n.Health() {
		t.Fatalf("expected a freshly started node to be healthy")
	}
}

func TestNode_AddPeerDirectProbe(t *testing.T) {
	a := New(testConfig("node-a", 31902), nopDriver{}, zap.NewNop())
	b := New(testConfig("node-b", 31903), nopDriver{}, zap.NewNop())

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start a: %v", err)
	}
	defer a.Stop()
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start b: %v", err)
	}
	defer b.Stop()

	ctx := context.Background()
	if err := a.AddPeer(ctx, "node-b", "127.0.0.1:31903", topology.NodeRegular); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := b.AddPeer(ctx, "node-a", "127.0.0.1:31902", topology.NodeRegular); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		m := a.MetricsSnapshot()
		if row, ok := m["node-a"]; ok {
			if peerMetrics, ok := row["node-b"]; ok && peerMetrics.HasLatency {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a successful probe")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
