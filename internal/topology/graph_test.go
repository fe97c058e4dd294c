package topology

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestUpdate_AddsEdgeWithWeight(t *testing.T) {
	g := New("self", NodeRegular, zap.NewNop())
	g.AddNode("peer-a", NodeRegular, "10.0.0.1:8080")

	now := time.Now()
	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10, HasLatency: true, PacketLossPct: 1, LastUpdated: now},
	}, now)

	if !g.HasEdge("self", "peer-a") {
		t.Fatalf("expected edge self<->peer-a")
	}
	snap := g.Snapshot()
	if snap.EdgeCount() != 1 {
		t.Fatalf("expected 1 edge, got %d", snap.EdgeCount())
	}
	if snap.Edges[0].WeightMs != 20 { // 10ms + 1%*10
		t.Fatalf("expected weight 20, got %v", snap.Edges[0].WeightMs)
	}
}

func TestUpdate_DropsEdgeOnHighLoss(t *testing.T) {
	g := New("self", NodeRegular, zap.NewNop())
	g.AddNode("peer-a", NodeRegular, "10.0.0.1:8080")

	now := time.Now()
	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10, HasLatency: true, PacketLossPct: 1, LastUpdated: now},
	}, now)
	if !g.HasEdge("self", "peer-a") {
		t.Fatalf("expected edge before high loss update")
	}

	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10, HasLatency: true, PacketLossPct: 60, LastUpdated: now},
	}, now)
	if g.HasEdge("self", "peer-a") {
		t.Fatalf("expected edge dropped on >50%% loss")
	}
}

func TestUpdate_DropsEdgeOnStaleMetrics(t *testing.T) {
	g := New("self", NodeRegular, zap.NewNop())
	g.AddNode("peer-a", NodeRegular, "10.0.0.1:8080")

	now := time.Now()
	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10, HasLatency: true, PacketLossPct: 1, LastUpdated: now},
	}, now)

	later := now.Add(31 * time.Second)
	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10, HasLatency: true, PacketLossPct: 1, LastUpdated: now},
	}, later)
	if g.HasEdge("self", "peer-a") {
		t.Fatalf("expected edge dropped on stale metrics")
	}
}

func TestUpdate_ChurnAvoidanceThreshold(t *testing.T) {
	g := New("self", NodeRegular, zap.NewNop())
	g.AddNode("peer-a", NodeRegular, "10.0.0.1:8080")

	now := time.Now()
	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10.0, HasLatency: true, PacketLossPct: 0, LastUpdated: now},
	}, now)

	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 10.05, HasLatency: true, PacketLossPct: 0, LastUpdated: now},
	}, now)

	snap := g.Snapshot()
	if snap.Edges[0].WeightMs != 10.0 {
		t.Fatalf("expected weight unchanged within churn threshold, got %v", snap.Edges[0].WeightMs)
	}

	g.Update([]Measurement{
		{Src: "self", Dest: "peer-a", LatencyMs: 11.0, HasLatency: true, PacketLossPct: 0, LastUpdated: now},
	}, now)
	snap = g.Snapshot()
	if snap.Edges[0].WeightMs != 11.0 {
		t.Fatalf("expected weight updated beyond churn threshold, got %v", snap.Edges[0].WeightMs)
	}
}

func TestAgeNodes_DropsStalePeerNotSelf(t *testing.T) {
	g := New("self", NodeRegular, zap.NewNop())
	g.AddNode("peer-a", NodeRegular, "10.0.0.1:8080")

	now := time.Now().Add(121 * time.Second)
	g.AgeNodes(now)

	snap := g.Snapshot()
	if snap.NodeCount() != 1 {
		t.Fatalf("expected only self to remain, got %d nodes", snap.NodeCount())
	}
	if snap.Nodes[0].ID != "self" {
		t.Fatalf("expected self to remain, got %s", snap.Nodes[0].ID)
	}
}

func TestBorderNodes(t *testing.T) {
	g := New("self", NodeRegular, zap.NewNop())
	g.AddNode("peer-a", NodeBorder, "10.0.0.1:8080")
	g.AddNode("peer-b", NodeRegular, "10.0.0.2:8080")

	borders := g.BorderNodes()
	if len(borders) != 1 || borders[0] != "peer-a" {
		t.Fatalf("expected [peer-a], got %v", borders)
	}
}
