package routing

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/topology"
)

func buildGraph(t *testing.T) *topology.Graph {
	t.Helper()
	g := topology.New("self", topology.NodeRegular, zap.NewNop())
	g.AddNode("b", topology.NodeRegular, "b:8080")
	g.AddNode("c", topology.NodeRegular, "c:8080")
	return g
}

func TestRecompute_DirectRoute(t *testing.T) {
	g := buildGraph(t)
	now := time.Now()
	g.Update([]topology.Measurement{
		{Src: "self", Dest: "b", LatencyMs: 10, HasLatency: true, LastUpdated: now},
	}, now)

	e := New(g, Config{}, zap.NewNop())
	e.Recompute(now)

	hop, ok := e.NextHop("b")
	if !ok || hop != "b" {
		t.Fatalf("expected direct route to b, got hop=%s ok=%v", hop, ok)
	}
}

func TestRecompute_MultiHopRoute(t *testing.T) {
	g := buildGraph(t)
	now := time.Now()
	g.Update([]topology.Measurement{
		{Src: "self", Dest: "b", LatencyMs: 10, HasLatency: true, LastUpdated: now},
		{Src: "b", Dest: "c", LatencyMs: 5, HasLatency: true, LastUpdated: now},
	}, now)

	e := New(g, Config{}, zap.NewNop())
	e.Recompute(now)

	hop, ok := e.NextHop("c")
	if !ok || hop != "b" {
		t.Fatalf("expected route to c via b, got hop=%s ok=%v", hop, ok)
	}
	path, ok := e.PathTo("c")
	if !ok {
		t.Fatalf("expected a fresh path to c")
	}
	want := []string{"self", "b", "c"}
	if len(path) != len(want) {
		t.Fatalf("path mismatch: got %v", path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path mismatch: got %v want %v", path, want)
		}
	}
}

func TestRecompute_HysteresisBlocksMarginalImprovement(t *testing.T) {
	g := buildGraph(t)
	now := time.Now()
	g.AddNode("d", topology.NodeRegular, "d:8080")

	g.Update([]topology.Measurement{
		{Src: "self", Dest: "b", LatencyMs: 100, HasLatency: true, LastUpdated: now},
	}, now)
	e := New(g, Config{HysteresisThreshold: 0.20}, zap.NewNop())
	e.Recompute(now)

	hop, _ := e.NextHop("b")
	if hop != "b" {
		t.Fatalf("expected initial route via b, got %s", hop)
	}

	// A marginally cheaper alternate path (self->d->b totalling 95ms,
	// a 5% improvement) must not displace the established direct route.
	soon := now.Add(time.Second)
	g.Update([]topology.Measurement{
		{Src: "self", Dest: "d", LatencyMs: 47.5, HasLatency: true, LastUpdated: soon},
		{Src: "d", Dest: "b", LatencyMs: 47.5, HasLatency: true, LastUpdated: soon},
	}, soon)
	e.Recompute(soon)

	hop, _ = e.NextHop("b")
	if hop != "b" {
		t.Fatalf("expected hysteresis to keep direct route, got %s", hop)
	}
}

func TestSnapshot_ExpiresStaleRoutes(t *testing.T) {
	g := buildGraph(t)
	now := time.Now()
	g.Update([]topology.Measurement{
		{Src: "self", Dest: "b", LatencyMs: 10, HasLatency: true, LastUpdated: now},
	}, now)

	e := New(g, Config{RouteFreshness: 10 * time.Millisecond}, zap.NewNop())
	e.Recompute(now)

	if !e.IsReachable("b") {
		t.Fatalf("expected b reachable immediately after recompute")
	}

	time.Sleep(30 * time.Millisecond)
	if e.IsReachable("b") {
		t.Fatalf("expected b to become unreachable once the route ages out")
	}
}
