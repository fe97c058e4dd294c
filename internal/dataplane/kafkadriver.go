package dataplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/metrics"
)

// routeEvent is the JSON record published to the configured Kafka topic
// for each applied or withdrawn route, giving external systems (BGP
// injectors, observability pipelines, other DDARP meshes) a feed of
// this node's forwarding decisions without the bridge depending on any
// of them directly.
type routeEvent struct {
	Kind          string   `json:"kind"` // "applied" | "withdrawn" | "peer_added" | "peer_removed"
	NodeID        string   `json:"node_id,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty"`
	Destination   string   `json:"destination,omitempty"`
	NextHop       string   `json:"next_hop,omitempty"`
	Path          []string `json:"path,omitempty"`
	CostMs        float64  `json:"cost_ms,omitempty"`
	LatencyMs     float64  `json:"latency_ms,omitempty"`
	JitterMs      float64  `json:"jitter_ms,omitempty"`
	PacketLossPct float64  `json:"packet_loss_percent,omitempty"`
	HasLatency    bool     `json:"has_latency,omitempty"`
	AtUnixNano    int64    `json:"at_unix_nano"`
}

// KafkaDataPlaneDriver is a reference DataPlaneDriver implementation
// that publishes route change events to Kafka via franz-go instead of
// programming a real forwarder. It demonstrates the capability seam
// with a concrete, runnable backend.
type KafkaDataPlaneDriver struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger

	healthy       atomic.Bool
	appliedCount  atomic.Int64

	mu        sync.Mutex
	lastError string
	lastAt    time.Time
}

// NewKafkaDataPlaneDriver builds a driver publishing to topic over the
// given brokers.
func NewKafkaDataPlaneDriver(brokers []string, topic, clientID string, logger *zap.Logger) (*KafkaDataPlaneDriver, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("dataplane: kafka client: %w", err)
	}

	d := &KafkaDataPlaneDriver{client: client, topic: topic, logger: logger.Named("dataplane.kafka")}
	d.healthy.Store(true)
	return d, nil
}

func (d *KafkaDataPlaneDriver) publish(ctx context.Context, ev routeEvent) error {
	ev.AtUnixNano = time.Now().UnixNano()
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("dataplane: marshal event: %w", err)
	}

	key := ev.Destination
	if key == "" {
		key = ev.NodeID
	}
	record := &kgo.Record{Topic: d.topic, Value: body, Key: []byte(key)}

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)
	d.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		produceErr = err
		wg.Done()
	})
	wg.Wait()

	d.mu.Lock()
	d.lastAt = time.Now()
	if produceErr != nil {
		d.lastError = produceErr.Error()
		d.healthy.Store(false)
		metrics.DriverFailuresTotal.WithLabelValues(ev.Kind).Inc()
	} else {
		d.lastError = ""
		d.healthy.Store(true)
	}
	d.mu.Unlock()

	return produceErr
}

func (d *KafkaDataPlaneDriver) AddPeer(ctx context.Context, nodeID, endpoint string) error {
	return d.publish(ctx, routeEvent{Kind: "peer_added", NodeID: nodeID, Endpoint: endpoint})
}

func (d *KafkaDataPlaneDriver) RemovePeer(ctx context.Context, nodeID string) error {
	return d.publish(ctx, routeEvent{Kind: "peer_removed", NodeID: nodeID})
}

func (d *KafkaDataPlaneDriver) ApplyRoute(ctx context.Context, update RouteUpdate) error {
	err := d.publish(ctx, routeEvent{
		Kind:          "applied",
		Destination:   update.Destination,
		NextHop:       update.NextHop,
		Path:          update.Path,
		CostMs:        update.CostMs,
		LatencyMs:     update.Metrics.LatencyMs,
		JitterMs:      update.Metrics.JitterMs,
		PacketLossPct: update.Metrics.PacketLossPct,
		HasLatency:    update.Metrics.HasLatency,
	})
	if err == nil {
		d.appliedCount.Add(1)
	}
	return err
}

func (d *KafkaDataPlaneDriver) WithdrawRoute(ctx context.Context, destination string) error {
	err := d.publish(ctx, routeEvent{Kind: "withdrawn", Destination: destination})
	if err == nil {
		d.appliedCount.Add(-1)
	}
	return err
}

func (d *KafkaDataPlaneDriver) IsHealthy() bool {
	return d.healthy.Load()
}

func (d *KafkaDataPlaneDriver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Healthy:       d.healthy.Load(),
		LastError:     d.lastError,
		LastAppliedAt: d.lastAt,
		AppliedRoutes: int(d.appliedCount.Load()),
	}
}

// Close releases the underlying Kafka client.
func (d *KafkaDataPlaneDriver) Close() {
	d.client.Close()
}
