package routing

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/metrics"
	"github.com/route-beacon/ddarp/internal/topology"
)

const (
	routeRefreshAge   = 30 * time.Second
	routeFreshnessDef = 120 * time.Second
	hysteresisDefault = 0.20
)

// Config configures an Engine.
type Config struct {
	HysteresisThreshold float64       // default 0.20 if zero
	RouteFreshness      time.Duration // default 120s if zero
}

// Engine is the path engine (C4): it recomputes shortest paths from a
// topology.Graph and maintains a hysteresis-damped routing table,
// grounded on ControlPlane._update_routing_table.
type Engine struct {
	graph  *topology.Graph
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	table map[string]PathInfo
}

// New constructs an Engine bound to graph.
func New(graph *topology.Graph, cfg Config, logger *zap.Logger) *Engine {
	if cfg.HysteresisThreshold <= 0 {
		cfg.HysteresisThreshold = hysteresisDefault
	}
	if cfg.RouteFreshness <= 0 {
		cfg.RouteFreshness = routeFreshnessDef
	}
	return &Engine{
		graph:  graph,
		cfg:    cfg,
		logger: logger.Named("routing"),
		table:  make(map[string]PathInfo),
	}
}

// Recompute runs Dijkstra from the graph's self node and applies
// hysteresis before committing any changes to the routing table.
// Intended to run on a periodic tick alongside topology updates.
func (e *Engine) Recompute(now time.Time) {
	adj := e.graph.Adjacency()
	self := e.graph.SelfID()

	paths, costs := shortestPaths(adj, self)

	e.mu.Lock()
	defer e.mu.Unlock()

	for dest, path := range paths {
		if dest == self || len(path) < 2 {
			continue
		}
		nextHop := path[1]
		cost := costs[dest]

		current, exists := e.table[dest]
		shouldUpdate := true
		reason := "new"
		if exists {
			age := now.Sub(current.UpdatedAt)
			switch {
			case age > routeRefreshAge:
				shouldUpdate = true
				reason = "stale_age"
			case !hasNeighbor(adj, self, current.NextHop):
				shouldUpdate = true
				reason = "broken_next_hop"
			default:
				shouldUpdate = false
				if current.CostMs > 0 {
					improvement := (current.CostMs - cost) / current.CostMs
					if improvement >= e.cfg.HysteresisThreshold {
						shouldUpdate = true
						reason = "hysteresis_improvement"
					}
				}
			}
		}

		if !shouldUpdate {
			continue
		}

		e.table[dest] = PathInfo{
			Destination: dest,
			NextHop:     nextHop,
			Path:        path,
			CostMs:      cost,
			UpdatedAt:   now,
		}
		metrics.RouteChangesTotal.WithLabelValues(reason).Inc()
		e.logger.Debug("route updated", zap.String("destination", dest), zap.String("next_hop", nextHop), zap.Float64("cost_ms", cost))
	}
}

func hasNeighbor(adj map[string]map[string]float64, self, neighbor string) bool {
	n, ok := adj[self]
	if !ok {
		return false
	}
	_, ok = n[neighbor]
	return ok
}

// NextHop returns the next hop toward destination if a fresh route
// exists.
func (e *Engine) NextHop(destination string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.freshLocked(destination)
	if !ok {
		return "", false
	}
	return p.NextHop, true
}

// PathTo returns the full path toward destination if a fresh route
// exists.
func (e *Engine) PathTo(destination string) ([]string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.freshLocked(destination)
	if !ok {
		return nil, false
	}
	return append([]string(nil), p.Path...), true
}

// IsReachable reports whether destination has a fresh route.
func (e *Engine) IsReachable(destination string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.freshLocked(destination)
	return ok
}

// RemoveDestination drops a routing table entry, used when a peer is
// removed from the node (mirrors ControlPlane.remove_peer's routing
// table cleanup).
func (e *Engine) RemoveDestination(destination string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.table, destination)
}

func (e *Engine) freshLocked(destination string) (PathInfo, bool) {
	p, ok := e.table[destination]
	if !ok {
		return PathInfo{}, false
	}
	if time.Since(p.UpdatedAt) >= e.cfg.RouteFreshness {
		return PathInfo{}, false
	}
	return p, true
}

// Snapshot returns every currently fresh routing table entry.
func (e *Engine) Snapshot() Table {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(Table)
	for dest, p := range e.table {
		if time.Since(p.UpdatedAt) < e.cfg.RouteFreshness {
			out[dest] = p
		}
	}
	return out
}
