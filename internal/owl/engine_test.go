package owl

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testEngine(t *testing.T, nodeID string, port uint16) *Engine {
	t.Helper()
	cfg := Config{
		NodeID:        nodeID,
		Port:          port,
		SharedSecret:  "test-secret",
		ProbeInterval: 20 * time.Millisecond,
		ProbeTimeout:  200 * time.Millisecond,
		MetricWindow:  30 * time.Second,
		HistoryDepth:  100,
	}
	e := New(cfg, zap.NewNop())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func TestEngine_ProbeRoundTrip(t *testing.T) {
	a := testEngine(t, "node-a", 31801)
	b := testEngine(t, "node-b", 31802)

	if err := a.AddPeer("node-b", "127.0.0.1:31802"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := b.AddPeer("node-a", "127.0.0.1:31801"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		m, err := a.PeerMetrics("node-b")
		if err != nil {
			t.Fatalf("PeerMetrics: %v", err)
		}
		if m.HasLatency && m.LatencyMs >= 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a successful probe, last metrics: %+v", m)
		case <-time.After(20 * time.Millisecond):
		}
	}

	state, err := a.PeerState("node-b")
	if err != nil {
		t.Fatalf("PeerState: %v", err)
	}
	if state != "responsive" {
		t.Fatalf("expected responsive, got %s", state)
	}
}

func TestEngine_UnknownPeer(t *testing.T) {
	a := testEngine(t, "node-a", 31803)
	if _, err := a.PeerMetrics("ghost"); err != ErrUnknownPeer {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestEngine_WrongSecretDropsDatagram(t *testing.T) {
	a := New(Config{
		NodeID:        "node-a",
		Port:          31804,
		SharedSecret:  "secret-a",
		ProbeInterval: 20 * time.Millisecond,
		ProbeTimeout:  200 * time.Millisecond,
		MetricWindow:  30 * time.Second,
		HistoryDepth:  100,
	}, zap.NewNop())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Stop)

	b := New(Config{
		NodeID:        "node-b",
		Port:          31805,
		SharedSecret:  "secret-b",
		ProbeInterval: 20 * time.Millisecond,
		ProbeTimeout:  100 * time.Millisecond,
		MetricWindow:  30 * time.Second,
		HistoryDepth:  100,
	}, zap.NewNop())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(b.Stop)

	if err := a.AddPeer("node-b", "127.0.0.1:31805"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	time.Sleep(400 * time.Millisecond)

	m, err := a.PeerMetrics("node-b")
	if err != nil {
		t.Fatalf("PeerMetrics: %v", err)
	}
	if m.HasLatency {
		t.Fatalf("expected no successful probes across mismatched secrets, got %+v", m)
	}
}

func TestStdevAndMean(t *testing.T) {
	xs := []float64{10, 10, 10}
	if got := mean(xs); got != 10 {
		t.Fatalf("mean: got %v", got)
	}
	if got := stdev(xs, mean(xs)); got != 0 {
		t.Fatalf("stdev of identical values: got %v", got)
	}
}
