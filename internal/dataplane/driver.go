// Package dataplane implements the data-plane bridge (C6): it watches
// routing table changes and translates them into calls against a
// pluggable DataPlaneDriver capability, the seam where a real forwarder
// (WireGuard, BIRD, VPP — all out of scope per the Non-goals) would
// attach. Package dataplane ships one concrete reference driver backed
// by Kafka, publishing route change events for external consumers
// rather than programming a kernel forwarding table directly.
package dataplane

import (
	"context"
	"time"
)

// MetricsSample carries the OWL measurement toward a destination at the
// time a route is applied, so a driver can re-advertise link quality
// alongside the forwarding decision (e.g. as BGP communities or fields
// on a published event) without depending on the owl package directly.
type MetricsSample struct {
	LatencyMs     float64
	JitterMs      float64
	PacketLossPct float64
	HasLatency    bool
}

// RouteUpdate describes one routing decision the bridge wants applied
// to the data plane, carrying the destination's current OWL metrics so
// the driver can re-advertise them on its own route-update channel.
type RouteUpdate struct {
	Destination string
	NextHop     string
	Path        []string
	CostMs      float64
	Metrics     MetricsSample
}

// Status is a driver's self-reported health, surfaced through the
// composite node's health tick.
type Status struct {
	Healthy        bool
	LastError      string
	LastAppliedAt  time.Time
	AppliedRoutes  int
}

// DataPlaneDriver is the capability interface the bridge drives.
// Implementations own whatever external forwarding mechanism they wrap;
// the bridge only ever calls these six methods.
type DataPlaneDriver interface {
	// AddPeer is called when a peer joins the node's peer set, before
	// any route can reference it as a next hop.
	AddPeer(ctx context.Context, nodeID, endpoint string) error

	// RemovePeer is called when a peer leaves the node's peer set.
	RemovePeer(ctx context.Context, nodeID string) error

	// ApplyRoute is called for each routing table change the bridge
	// decides to push (see Bridge's skip-direct-peer policy).
	ApplyRoute(ctx context.Context, update RouteUpdate) error

	// WithdrawRoute is called when a previously applied destination
	// drops out of the routing table (aged out or unreachable).
	WithdrawRoute(ctx context.Context, destination string) error

	// IsHealthy reports whether the driver is currently able to apply
	// changes; the bridge consults this before each ApplyRoute and
	// skips that destination until the next Reconcile when it returns
	// false.
	IsHealthy() bool

	// Status returns diagnostic detail for the node's health accessor.
	Status() Status
}
