package topology

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// staleEdgeAge and staleNodeAge are the aging thresholds from spec §5.3
// (grounded on the original control plane's _cleanup_stale_edges and
// topology update loop).
const (
	staleMetricsAge  = 30 * time.Second
	staleEdgeAge     = 60 * time.Second
	staleNodeAge     = 120 * time.Second
	highLossPercent  = 50.0
	churnThresholdMs = 0.1
	lossWeightFactor = 10.0
)

// Graph is the mutable topology model. All mutation happens through
// Update/AddNode/RemoveNode/AgeNodes; reads take a Snapshot so callers never
// see a graph mid-mutation.
type Graph struct {
	selfID string

	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[[2]string]*Edge

	logger *zap.Logger
}

// New creates a Graph containing only the local node.
func New(selfID string, selfType NodeType, logger *zap.Logger) *Graph {
	g := &Graph{
		selfID: selfID,
		nodes:  make(map[string]*Node),
		edges:  make(map[[2]string]*Edge),
		logger: logger.Named("topology"),
	}
	g.nodes[selfID] = &Node{ID: selfID, Type: selfType, Endpoint: "self", LastSeen: time.Now()}
	return g
}

// AddNode registers or refreshes a peer node.
func (g *Graph) AddNode(id string, typ NodeType, endpoint string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.nodes[id]; ok {
		n.LastSeen = time.Now()
		return
	}
	g.nodes[id] = &Node{ID: id, Type: typ, Endpoint: endpoint, LastSeen: time.Now()}
	g.logger.Info("node added", zap.String("node", id), zap.String("type", string(typ)))
}

// RemoveNode drops a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeNodeLocked(id)
}

func (g *Graph) removeNodeLocked(id string) {
	delete(g.nodes, id)
	for k, e := range g.edges {
		if e.A == id || e.B == id {
			delete(g.edges, k)
		}
	}
	g.logger.Info("node removed", zap.String("node", id))
}

// HasEdge reports whether an edge currently exists between two nodes.
func (g *Graph) HasEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ka, kb := edgeKey(a, b)
	_, ok := g.edges[[2]string{ka, kb}]
	return ok
}

// Measurement is one directed OWL reading to fold into the topology,
// matching the shape of owl.MetricsMatrix's inner entries.
type Measurement struct {
	Src, Dest     string
	LatencyMs     float64
	HasLatency    bool
	PacketLossPct float64
	LastUpdated   time.Time
}

// Update folds a batch of OWL measurements into the graph: computing
// edge weights, applying the staleness/high-loss drop rules, and the
// 0.1ms churn-avoidance threshold on weight updates (grounded on
// ControlPlane.update_topology).
func (g *Graph) Update(measurements []Measurement, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if self, ok := g.nodes[g.selfID]; ok {
		self.LastSeen = now
	}

	for _, m := range measurements {
		if _, ok := g.nodes[m.Src]; !ok {
			continue
		}
		if _, ok := g.nodes[m.Dest]; !ok {
			continue
		}
		g.nodes[m.Src].LastSeen = now

		ka, kb := edgeKey(m.Src, m.Dest)
		key := [2]string{ka, kb}

		if !m.HasLatency || now.Sub(m.LastUpdated) > staleMetricsAge {
			if _, ok := g.edges[key]; ok {
				delete(g.edges, key)
				g.logger.Info("edge removed: stale or missing latency", zap.String("a", ka), zap.String("b", kb))
			}
			continue
		}
		if m.PacketLossPct > highLossPercent {
			if _, ok := g.edges[key]; ok {
				delete(g.edges, key)
				g.logger.Info("edge removed: high packet loss", zap.String("a", ka), zap.String("b", kb), zap.Float64("loss_pct", m.PacketLossPct))
			}
			continue
		}

		g.nodes[m.Dest].LastSeen = now

		weight := m.LatencyMs + m.PacketLossPct*lossWeightFactor

		if existing, ok := g.edges[key]; ok {
			if absDiff(existing.WeightMs, weight) > churnThresholdMs {
				existing.WeightMs = weight
				existing.UpdatedAt = now
			}
		} else {
			g.edges[key] = &Edge{A: ka, B: kb, WeightMs: weight, UpdatedAt: now}
		}
	}

	g.cleanupStaleEdgesLocked(now)
}

func (g *Graph) cleanupStaleEdgesLocked(now time.Time) {
	for key, e := range g.edges {
		aStale := e.A != g.selfID && g.isStaleLocked(e.A, now, staleEdgeAge)
		bStale := e.B != g.selfID && g.isStaleLocked(e.B, now, staleEdgeAge)
		if aStale || bStale {
			delete(g.edges, key)
			g.logger.Info("edge removed: endpoint stale", zap.String("a", e.A), zap.String("b", e.B))
		}
	}
}

func (g *Graph) isStaleLocked(id string, now time.Time, threshold time.Duration) bool {
	n, ok := g.nodes[id]
	if !ok {
		return true
	}
	return now.Sub(n.LastSeen) > threshold
}

// AgeNodes drops non-self nodes not seen within staleNodeAge, and any
// edges that touched them. Intended to run on its own periodic tick
// (spec §5.3, grounded on ControlPlane._topology_update_loop).
func (g *Graph) AgeNodes(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var stale []string
	for id, n := range g.nodes {
		if id == g.selfID {
			continue
		}
		if now.Sub(n.LastSeen) > staleNodeAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		g.removeNodeLocked(id)
	}
}

// BorderNodes returns the IDs of all known border nodes (spec §11
// SUPPLEMENTED FEATURES, grounded on get_border_nodes).
func (g *Graph) BorderNodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for id, n := range g.nodes {
		if n.Type == NodeBorder {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns a deep copy of the current nodes and edges.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, *n)
	}
	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, *e)
	}
	return Snapshot{Nodes: nodes, Edges: edges}
}

// SelfID returns the local node ID this graph is rooted at.
func (g *Graph) SelfID() string { return g.selfID }

// Adjacency returns a read-only adjacency view for the path engine:
// node -> neighbor -> weight. It copies under the same lock Snapshot
// uses so routing never observes a torn graph.
func (g *Graph) Adjacency() map[string]map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	adj := make(map[string]map[string]float64, len(g.nodes))
	for id := range g.nodes {
		adj[id] = make(map[string]float64)
	}
	for _, e := range g.edges {
		if _, ok := adj[e.A]; ok {
			adj[e.A][e.B] = e.WeightMs
		}
		if _, ok := adj[e.B]; ok {
			adj[e.B][e.A] = e.WeightMs
		}
	}
	return adj
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
