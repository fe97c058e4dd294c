package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full DDARP node configuration surface (spec §6).
type Config struct {
	Service   ServiceConfig     `koanf:"service"`
	Node      NodeConfig        `koanf:"node"`
	OWL       OWLConfig         `koanf:"owl"`
	Routing   RoutingConfig     `koanf:"routing"`
	DataPlane DataPlaneConfig   `koanf:"dataplane"`
	Peers     map[string]Peer   `koanf:"peers"`
}

type ServiceConfig struct {
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type NodeConfig struct {
	NodeID   string `koanf:"node_id"`
	NodeType string `koanf:"node_type"` // "regular" or "border"
}

type OWLConfig struct {
	Port              uint16  `koanf:"owl_port"`
	SharedSecret      string  `koanf:"shared_secret"`
	ProbeIntervalS    float64 `koanf:"probe_interval_s"`
	ProbeTimeoutS     float64 `koanf:"probe_timeout_s"`
	MetricWindowS     float64 `koanf:"metric_window_s"`
	HistoryDepth      int     `koanf:"history_depth"`
	AllowCompressed   bool    `koanf:"allow_compressed"`
}

type RoutingConfig struct {
	HysteresisThreshold float64 `koanf:"hysteresis_threshold"`
	RouteFreshnessS     float64 `koanf:"route_freshness_s"`
}

// Peer is a statically configured remote node (management owns the peer
// set; spec §4.5 AddPeer/RemovePeer are the runtime mutators for it).
type Peer struct {
	NodeID   string `koanf:"node_id"`
	Endpoint string `koanf:"endpoint"`
}

type DataPlaneConfig struct {
	Kafka KafkaDriverConfig `koanf:"kafka"`
}

// KafkaDriverConfig configures the reference DataPlaneDriver that
// publishes route/peer events to Kafka for an external data-plane agent.
type KafkaDriverConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: DDARP_OWL__OWL_PORT -> owl.owl_port
	if err := k.Load(env.Provider("DDARP_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "DDARP_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 15,
		},
		Node: NodeConfig{
			NodeType: "regular",
		},
		OWL: OWLConfig{
			Port:           8080,
			ProbeIntervalS: 1.0,
			ProbeTimeoutS:  5.0,
			MetricWindowS:  30.0,
			HistoryDepth:   100,
		},
		Routing: RoutingConfig{
			HysteresisThreshold: 0.20,
			RouteFreshnessS:     120,
		},
		DataPlane: DataPlaneConfig{
			Kafka: KafkaDriverConfig{
				ClientID: "ddarpd",
			},
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.DataPlane.Kafka.Brokers) == 1 && strings.Contains(cfg.DataPlane.Kafka.Brokers[0], ",") {
		cfg.DataPlane.Kafka.Brokers = strings.Split(cfg.DataPlane.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Node.NodeID == "" {
		return fmt.Errorf("config: node.node_id is required")
	}
	if len(c.Node.NodeID) > 64 {
		return fmt.Errorf("config: node.node_id must be <= 64 bytes (got %d)", len(c.Node.NodeID))
	}
	if c.Node.NodeType != "regular" && c.Node.NodeType != "border" {
		return fmt.Errorf("config: node.node_type must be 'regular' or 'border' (got %q)", c.Node.NodeType)
	}
	if c.OWL.SharedSecret == "" {
		return fmt.Errorf("config: owl.shared_secret is required")
	}
	if c.OWL.ProbeIntervalS <= 0 {
		return fmt.Errorf("config: owl.probe_interval_s must be > 0 (got %v)", c.OWL.ProbeIntervalS)
	}
	if c.OWL.ProbeTimeoutS <= 0 {
		return fmt.Errorf("config: owl.probe_timeout_s must be > 0 (got %v)", c.OWL.ProbeTimeoutS)
	}
	if c.OWL.MetricWindowS <= 0 {
		return fmt.Errorf("config: owl.metric_window_s must be > 0 (got %v)", c.OWL.MetricWindowS)
	}
	if c.OWL.HistoryDepth <= 0 {
		return fmt.Errorf("config: owl.history_depth must be > 0 (got %d)", c.OWL.HistoryDepth)
	}
	if c.Routing.HysteresisThreshold <= 0 || c.Routing.HysteresisThreshold >= 1 {
		return fmt.Errorf("config: routing.hysteresis_threshold must be in (0,1) (got %v)", c.Routing.HysteresisThreshold)
	}
	if c.Routing.RouteFreshnessS <= 0 {
		return fmt.Errorf("config: routing.route_freshness_s must be > 0 (got %v)", c.Routing.RouteFreshnessS)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.DataPlane.Kafka.Enabled {
		if len(c.DataPlane.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: dataplane.kafka.brokers is required when dataplane.kafka.enabled is true")
		}
		if c.DataPlane.Kafka.Topic == "" {
			return fmt.Errorf("config: dataplane.kafka.topic is required when dataplane.kafka.enabled is true")
		}
	}
	for name, p := range c.Peers {
		if p.NodeID == "" {
			return fmt.Errorf("config: peers.%s.node_id is required", name)
		}
		if p.Endpoint == "" {
			return fmt.Errorf("config: peers.%s.endpoint is required", name)
		}
	}
	return nil
}
