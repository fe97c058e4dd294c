package config

import "testing"

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 15,
		},
		Node: NodeConfig{
			NodeID:   "node-a",
			NodeType: "regular",
		},
		OWL: OWLConfig{
			Port:           8080,
			SharedSecret:   "s3cret",
			ProbeIntervalS: 1.0,
			ProbeTimeoutS:  5.0,
			MetricWindowS:  30.0,
			HistoryDepth:   100,
		},
		Routing: RoutingConfig{
			HysteresisThreshold: 0.20,
			RouteFreshnessS:     120,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoNodeID(t *testing.T) {
	cfg := validConfig()
	cfg.Node.NodeID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty node_id")
	}
}

func TestValidate_NodeIDTooLong(t *testing.T) {
	cfg := validConfig()
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	cfg.Node.NodeID = string(long)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for node_id over 64 bytes")
	}
}

func TestValidate_BadNodeType(t *testing.T) {
	cfg := validConfig()
	cfg.Node.NodeType = "super"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid node_type")
	}
}

func TestValidate_NoSharedSecret(t *testing.T) {
	cfg := validConfig()
	cfg.OWL.SharedSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty shared_secret")
	}
}

func TestValidate_HysteresisOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.HysteresisThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for hysteresis_threshold >= 1")
	}
}

func TestValidate_KafkaEnabledRequiresBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.DataPlane.Kafka.Enabled = true
	cfg.DataPlane.Kafka.Topic = "ddarp.routes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing brokers when kafka enabled")
	}
}

func TestValidate_PeerMissingEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Peers = map[string]Peer{
		"b": {NodeID: "node-b"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for peer missing endpoint")
	}
}
