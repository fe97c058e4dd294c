package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	InvalidPacketTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_invalid_packet_total",
			Help: "Packets rejected at decode for being structurally invalid.",
		},
		[]string{"reason"},
	)

	UnknownTLVTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_unknown_tlv_total",
			Help: "Unknown TLVs encountered while decoding.",
		},
		[]string{"disposition"},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_auth_failures_total",
			Help: "OWL probe/pong messages dropped for HMAC mismatch.",
		},
		[]string{"peer"},
	)

	PeerUnreachableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_peer_unreachable_total",
			Help: "Probe timeouts recorded as lost pings.",
		},
		[]string{"peer"},
	)

	DriverFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_driver_failures_total",
			Help: "DataPlaneDriver calls that returned an error.",
		},
		[]string{"op"},
	)

	RouteChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_route_changes_total",
			Help: "Routing table entries replaced, by reason.",
		},
		[]string{"reason"},
	)

	ProbeRoundTripSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddarp_probe_round_trip_seconds",
			Help:    "Observed OWL probe round-trip latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"peer"},
	)

	TopologyNodeCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddarp_topology_nodes",
			Help: "Current node count in the topology graph.",
		},
	)

	RoutingTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddarp_routing_table_entries",
			Help: "Current number of fresh routes.",
		},
	)
)

// Register adds all DDARP collectors to the default Prometheus registry.
// The HTTP scrape endpoint that exposes them is an external collaborator
// (spec §1) and is intentionally not part of this package.
func Register() {
	prometheus.MustRegister(
		InvalidPacketTotal,
		UnknownTLVTotal,
		AuthFailuresTotal,
		PeerUnreachableTotal,
		DriverFailuresTotal,
		RouteChangesTotal,
		ProbeRoundTripSeconds,
		TopologyNodeCount,
		RoutingTableSize,
	)
}
