// Package node implements the composite node (C5): it owns the
// lifecycle of the OWL engine, topology model, path engine, and
// data-plane bridge, and runs the tick loops that move measurements
// through the pipeline from probe to applied route.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/config"
	"github.com/route-beacon/ddarp/internal/dataplane"
	"github.com/route-beacon/ddarp/internal/metrics"
	"github.com/route-beacon/ddarp/internal/owl"
	"github.com/route-beacon/ddarp/internal/routing"
	"github.com/route-beacon/ddarp/internal/topology"
)

const (
	topologyTickInterval  = 5 * time.Second
	dataPlaneTickInterval = 10 * time.Second
	agingTickInterval     = 5 * time.Second
	healthTickInterval    = 30 * time.Second
)

// Node wires C1-C4 and C6 together into one running process. It holds
// no wire-codec state directly: the OWL engine speaks its own signed
// UDP protocol, and TLV encode/decode (package wire) is used by
// whatever transport layer a concrete DataPlaneDriver chooses, not by
// Node itself.
type Node struct {
	id     string
	nodeType topology.NodeType
	logger *zap.Logger

	owlEngine *owl.Engine
	graph     *topology.Graph
	router    *routing.Engine
	bridge    *dataplane.Bridge

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New constructs a Node from configuration. The driver argument is the
// concrete DataPlaneDriver to bridge routing decisions into; callers
// typically build a dataplane.KafkaDataPlaneDriver or a test double.
func New(cfg *config.Config, driver dataplane.DataPlaneDriver, logger *zap.Logger) *Node {
	nt := topology.NodeRegular
	if cfg.Node.NodeType == "border" {
		nt = topology.NodeBorder
	}

	logger = logger.Named("node").With(zap.String("node_id", cfg.Node.NodeID))

	owlEngine := owl.New(owl.Config{
		NodeID:        cfg.Node.NodeID,
		Port:          cfg.OWL.Port,
		SharedSecret:  cfg.OWL.SharedSecret,
		ProbeInterval: time.Duration(cfg.OWL.ProbeIntervalS * float64(time.Second)),
		ProbeTimeout:  time.Duration(cfg.OWL.ProbeTimeoutS * float64(time.Second)),
		MetricWindow:  time.Duration(cfg.OWL.MetricWindowS * float64(time.Second)),
		HistoryDepth:  cfg.OWL.HistoryDepth,
	}, logger)

	graph := topology.New(cfg.Node.NodeID, nt, logger)

	router := routing.New(graph, routing.Config{
		HysteresisThreshold: cfg.Routing.HysteresisThreshold,
		RouteFreshness:      time.Duration(cfg.Routing.RouteFreshnessS * float64(time.Second)),
	}, logger)

	bridge := dataplane.NewBridge(driver, logger)

	return &Node{
		id:        cfg.Node.NodeID,
		nodeType:  nt,
		logger:    logger,
		owlEngine: owlEngine,
		graph:     graph,
		router:    router,
		bridge:    bridge,
	}
}

// Start brings up the OWL socket and all tick loops. Startup order
// matters: the OWL engine must be listening before peers are added, and
// peers must exist before the topology/routing ticks have anything to
// compute over.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("node: already running")
	}

	if err := n.owlEngine.Start(ctx); err != nil {
		return fmt.Errorf("node: start owl engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(4)
	go n.topologyTick(runCtx)
	go n.dataPlaneTick(runCtx)
	go n.agingTick(runCtx)
	go n.healthTick(runCtx)

	n.running = true
	n.logger.Info("node started")
	return nil
}

// Stop halts every tick loop, in the reverse order Start brought them
// up, then stops the OWL engine last. It does not wait for replies to
// probes still in flight: the engine cancels their timeouts and closes
// its socket at once, so those probes are neither completed nor
// recorded as lost.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.cancel()
	n.wg.Wait()
	n.owlEngine.Stop()
	n.running = false
	n.logger.Info("node stopped")
}

// AddPeer registers a peer with the OWL engine, topology, and data
// plane driver. node_type and endpoint describe the peer for the
// topology model; the OWL engine always speaks to the same endpoint on
// its own probe port.
func (n *Node) AddPeer(ctx context.Context, nodeID, endpoint string, peerType topology.NodeType) error {
	if err := n.owlEngine.AddPeer(nodeID, endpoint); err != nil {
		return fmt.Errorf("node: add peer to owl engine: %w", err)
	}
	n.graph.AddNode(nodeID, peerType, endpoint)
	if err := n.bridge.AddPeer(ctx, nodeID, endpoint); err != nil {
		n.logger.Warn("data plane add peer failed", zap.String("peer", nodeID), zap.Error(err))
	}
	return nil
}

// RemovePeer drops a peer from every component.
func (n *Node) RemovePeer(ctx context.Context, nodeID string) {
	n.owlEngine.RemovePeer(nodeID)
	n.graph.RemoveNode(nodeID)
	n.router.RemoveDestination(nodeID)
	if err := n.bridge.RemovePeer(ctx, nodeID); err != nil {
		n.logger.Warn("data plane remove peer failed", zap.String("peer", nodeID), zap.Error(err))
	}
}

// MetricsSnapshot returns the OWL metrics matrix for this node.
func (n *Node) MetricsSnapshot() owl.MetricsMatrix {
	return n.owlEngine.MetricsMatrix()
}

// TopologySnapshot returns the current topology graph.
func (n *Node) TopologySnapshot() topology.Snapshot {
	return n.graph.Snapshot()
}

// RoutingTableSnapshot returns every fresh routing table entry.
func (n *Node) RoutingTableSnapshot() routing.Table {
	return n.router.Snapshot()
}

// PathTo returns the path toward destination, if a fresh route exists.
func (n *Node) PathTo(destination string) ([]string, bool) {
	return n.router.PathTo(destination)
}

// BorderNodes returns the IDs of known border nodes.
func (n *Node) BorderNodes() []string {
	return n.graph.BorderNodes()
}

// Health reports whether every component the node owns is in a good
// state: the data-plane driver is healthy and the topology still
// contains this node.
func (n *Node) Health() bool {
	snap := n.graph.Snapshot()
	selfPresent := false
	for _, node := range snap.Nodes {
		if node.ID == n.id {
			selfPresent = true
			break
		}
	}
	return selfPresent && n.bridge.Status().Healthy
}

func (n *Node) topologyTick(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(topologyTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			matrix := n.owlEngine.MetricsMatrix()
			n.graph.Update(toMeasurements(matrix), now)
			n.router.Recompute(now)

			snap := n.graph.Snapshot()
			metrics.TopologyNodeCount.Set(float64(snap.NodeCount()))
			metrics.RoutingTableSize.Set(float64(len(n.router.Snapshot())))
		}
	}
}

func toMeasurements(matrix owl.MetricsMatrix) []topology.Measurement {
	var out []topology.Measurement
	for src, row := range matrix {
		for dest, m := range row {
			out = append(out, topology.Measurement{
				Src:           src,
				Dest:          dest,
				LatencyMs:     m.LatencyMs,
				HasLatency:    m.HasLatency,
				PacketLossPct: m.PacketLossPct,
				LastUpdated:   m.LastUpdated,
			})
		}
	}
	return out
}

func (n *Node) dataPlaneTick(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(dataPlaneTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.bridge.Reconcile(ctx, n.router.Snapshot(), n.destinationMetrics())
		}
	}
}

// destinationMetrics looks up this node's own OWL measurement row and
// keys it by destination, mirroring the original data-plane integration
// loop's dest_metrics lookup: a multi-hop destination re-advertises
// whatever OWL reading exists under its own node ID, falling back to
// the zero value when this node has no direct probe toward it.
func (n *Node) destinationMetrics() map[string]dataplane.MetricsSample {
	row := n.owlEngine.MetricsMatrix()[n.id]
	out := make(map[string]dataplane.MetricsSample, len(row))
	for dest, m := range row {
		out[dest] = dataplane.MetricsSample{
			LatencyMs:     m.LatencyMs,
			JitterMs:      m.JitterMs,
			PacketLossPct: m.PacketLossPct,
			HasLatency:    m.HasLatency,
		}
	}
	return out
}

func (n *Node) agingTick(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(agingTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.graph.AgeNodes(time.Now())
		}
	}
}

func (n *Node) healthTick(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(healthTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.logger.Debug("health tick", zap.Bool("healthy", n.Health()))
		}
	}
}
