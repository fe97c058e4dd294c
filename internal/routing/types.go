// Package routing implements the path engine (C4): it runs Dijkstra
// over the topology model's adjacency view, applies hysteresis so
// established routes aren't displaced by marginal improvements, and
// exposes a freshness-bounded routing table.
package routing

import "time"

// PathInfo is one routing table entry.
type PathInfo struct {
	Destination string
	NextHop     string
	Path        []string
	CostMs      float64
	UpdatedAt   time.Time
}

// Table is a point-in-time copy of the routing table, keyed by
// destination, containing only entries that pass the freshness check
// at the moment the snapshot was taken.
type Table map[string]PathInfo
