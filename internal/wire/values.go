package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// OwlMetricsValue is the fixed 20-byte OWL_METRICS TLV value.
type OwlMetricsValue struct {
	LatencyNs uint64
	JitterNs  uint64
	Timestamp uint32
}

func encodeOwlMetrics(v OwlMetricsValue) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint64(buf[0:8], v.LatencyNs)
	binary.BigEndian.PutUint64(buf[8:16], v.JitterNs)
	binary.BigEndian.PutUint32(buf[16:20], v.Timestamp)
	return buf
}

func decodeOwlMetrics(b []byte) (OwlMetricsValue, error) {
	if len(b) != 20 {
		return OwlMetricsValue{}, fmt.Errorf("owl_metrics: expected 20 bytes, got %d", len(b))
	}
	return OwlMetricsValue{
		LatencyNs: binary.BigEndian.Uint64(b[0:8]),
		JitterNs:  binary.BigEndian.Uint64(b[8:16]),
		Timestamp: binary.BigEndian.Uint32(b[16:20]),
	}, nil
}

// RoutingInfoValue is the variable-length ROUTING_INFO TLV value.
type RoutingInfoValue struct {
	Destination string // CIDR
	NextHop     string // address
	Metric      uint32
}

func encodeRoutingInfo(v RoutingInfoValue) []byte {
	dest := []byte(v.Destination)
	hop := []byte(v.NextHop)
	buf := make([]byte, 4+len(dest)+len(hop)+4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(dest)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(hop)))
	offset := 4
	copy(buf[offset:], dest)
	offset += len(dest)
	copy(buf[offset:], hop)
	offset += len(hop)
	binary.BigEndian.PutUint32(buf[offset:], v.Metric)
	return buf
}

func decodeRoutingInfo(b []byte) (RoutingInfoValue, error) {
	if len(b) < 4 {
		return RoutingInfoValue{}, fmt.Errorf("routing_info: too short (%d bytes)", len(b))
	}
	destLen := int(binary.BigEndian.Uint16(b[0:2]))
	hopLen := int(binary.BigEndian.Uint16(b[2:4]))
	want := 4 + destLen + hopLen + 4
	if len(b) != want {
		return RoutingInfoValue{}, fmt.Errorf("routing_info: expected %d bytes, got %d", want, len(b))
	}
	offset := 4
	dest := string(b[offset : offset+destLen])
	offset += destLen
	hop := string(b[offset : offset+hopLen])
	offset += hopLen
	metric := binary.BigEndian.Uint32(b[offset:])
	return RoutingInfoValue{Destination: dest, NextHop: hop, Metric: metric}, nil
}

func encodeNeighborList(ids []string) []byte {
	b, _ := json.Marshal(ids)
	return b
}

func decodeNeighborList(b []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("neighbor_list: %w", err)
	}
	return ids, nil
}

func decodeErrorInfo(b []byte) (string, error) {
	return string(b), nil
}

func encodeCapabilities(v map[string]any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func decodeCapabilities(b []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	return v, nil
}
