package owl

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/route-beacon/ddarp/internal/metrics"
)

// peerState tracks a peer's probe lifecycle, independent of the
// OwlMetrics values computed from its ping history.
type peerState int32

const (
	stateRegistered peerState = iota // added, no probe sent yet
	stateProbing                     // at least one probe sent, awaiting first reply
	stateResponsive                  // most recent probe in the window succeeded
	stateSilent                      // most recent probe in the window was lost
)

func (s peerState) String() string {
	switch s {
	case stateRegistered:
		return "registered"
	case stateProbing:
		return "probing"
	case stateResponsive:
		return "responsive"
	case stateSilent:
		return "silent"
	default:
		return "unknown"
	}
}

type peerEntry struct {
	nodeID string
	addr   *net.UDPAddr

	state peerState32
	// seq is a monotonic counter scoped to this (local, peer) pair. The
	// original implementation used one process-wide sequence number for
	// all peers; this widens it to one counter per peer so probes to
	// different peers never share a sequence space (spec requirement).
	seq atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]time.Time

	historyMu sync.Mutex
	history   *ring
}

// peerState32 wraps atomic.Int32 so peerEntry's state field reads
// naturally as peerState at call sites.
type peerState32 struct{ v atomic.Int32 }

func (p *peerState32) Load() peerState      { return peerState(p.v.Load()) }
func (p *peerState32) Store(s peerState)    { p.v.Store(int32(s)) }

// Config configures an Engine.
type Config struct {
	NodeID        string
	Port          uint16
	SharedSecret  string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	MetricWindow  time.Duration
	HistoryDepth  int
}

// Engine is the OWL probe engine (C2). One Engine runs per composite
// node; peers are added/removed at runtime as the node's peer set
// changes.
type Engine struct {
	cfg    Config
	secret []byte
	logger *zap.Logger

	conn *net.UDPConn

	mu    sync.RWMutex
	peers map[string]*peerEntry

	cancel context.CancelFunc
	wg     sync.WaitGroup

	running atomic.Bool
}

// New constructs an Engine. It does not open a socket until Start.
func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 100
	}
	return &Engine{
		cfg:    cfg,
		secret: []byte(cfg.SharedSecret),
		logger: logger.Named("owl"),
		peers:  make(map[string]*peerEntry),
	}
}

// Start opens the UDP listener and begins the probe and receive loops.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(e.cfg.Port)})
	if err != nil {
		e.running.Store(false)
		return fmt.Errorf("owl: listen udp :%d: %w", e.cfg.Port, err)
	}
	e.conn = conn

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go e.receiveLoop(runCtx)
	go e.probeLoop(runCtx)

	e.logger.Info("started", zap.Uint16("port", e.cfg.Port))
	return nil
}

// Stop halts the probe and receive loops and closes the socket.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	if e.conn != nil {
		e.conn.Close()
	}
	e.wg.Wait()
	e.logger.Info("stopped")
}

// AddPeer registers a peer by node ID and UDP endpoint ("host:port").
func (e *Engine) AddPeer(nodeID, endpoint string) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return fmt.Errorf("owl: resolve %s: %w", endpoint, err)
	}

	pe := &peerEntry{
		nodeID:  nodeID,
		addr:    addr,
		pending: make(map[uint64]time.Time),
		history: newRing(e.cfg.HistoryDepth),
	}
	pe.state.Store(stateRegistered)

	e.mu.Lock()
	e.peers[nodeID] = pe
	e.mu.Unlock()

	e.logger.Info("peer added", zap.String("peer", nodeID), zap.String("endpoint", endpoint))
	return nil
}

// RemovePeer drops a peer and its probe history.
func (e *Engine) RemovePeer(nodeID string) {
	e.mu.Lock()
	delete(e.peers, nodeID)
	e.mu.Unlock()
	e.logger.Info("peer removed", zap.String("peer", nodeID))
}

// PeerState reports the probe lifecycle state of a known peer.
func (e *Engine) PeerState(nodeID string) (string, error) {
	e.mu.RLock()
	pe, ok := e.peers[nodeID]
	e.mu.RUnlock()
	if !ok {
		return "", ErrUnknownPeer
	}
	return pe.state.Load().String(), nil
}

// PeerMetrics returns the current OWL metrics for one peer.
func (e *Engine) PeerMetrics(nodeID string) (Metrics, error) {
	e.mu.RLock()
	pe, ok := e.peers[nodeID]
	e.mu.RUnlock()
	if !ok {
		return Metrics{}, ErrUnknownPeer
	}
	return e.calculateMetrics(pe), nil
}

// MetricsMatrix returns a snapshot of this node's measurements toward
// every known peer, shaped like the original control plane's
// metrics_matrix accessor (spec §5.2).
func (e *Engine) MetricsMatrix() MetricsMatrix {
	e.mu.RLock()
	peers := make([]*peerEntry, 0, len(e.peers))
	for _, pe := range e.peers {
		peers = append(peers, pe)
	}
	e.mu.RUnlock()

	row := make(map[string]Metrics, len(peers))
	for _, pe := range peers {
		row[pe.nodeID] = e.calculateMetrics(pe)
	}
	return MetricsMatrix{e.cfg.NodeID: row}
}

func (e *Engine) calculateMetrics(pe *peerEntry) Metrics {
	pe.historyMu.Lock()
	records := pe.history.snapshot()
	pe.historyMu.Unlock()

	cutoff := time.Now().Add(-e.cfg.MetricWindow)
	var recent []PingRecord
	for _, r := range records {
		if r.SentAt.After(cutoff) {
			recent = append(recent, r)
		}
	}
	if len(recent) == 0 {
		return Metrics{}
	}

	var lost int
	var latencies []float64
	for _, r := range recent {
		if r.Lost {
			lost++
		} else {
			latencies = append(latencies, r.LatencyMs)
		}
	}

	m := Metrics{
		PacketLossPct: float64(lost) / float64(len(recent)) * 100,
		LastUpdated:   time.Now(),
	}
	if len(latencies) > 0 {
		m.HasLatency = true
		m.LatencyMs = mean(latencies)
		if len(latencies) > 1 {
			m.JitterMs = stdev(latencies, m.LatencyMs)
		}
	}
	return m
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev computes the population standard deviation, matching the
// original's use of a full-population jitter estimate over the probe
// window rather than a sample correction.
func stdev(xs []float64, m float64) float64 {
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func (e *Engine) probeLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.RLock()
			peers := make([]*peerEntry, 0, len(e.peers))
			for _, pe := range e.peers {
				peers = append(peers, pe)
			}
			e.mu.RUnlock()

			for _, pe := range peers {
				e.sendPing(ctx, pe)
			}
		}
	}
}

func (e *Engine) sendPing(ctx context.Context, pe *peerEntry) {
	seq := pe.seq.Add(1)
	now := time.Now()

	payload := pingPayload{
		Type:        msgPing,
		Src:         e.cfg.NodeID,
		Dest:        pe.nodeID,
		Seq:         seq,
		TimestampNs: now.UnixNano(),
	}
	msg, err := encodeEnvelope(e.secret, payload)
	if err != nil {
		e.logger.Error("encode ping", zap.String("peer", pe.nodeID), zap.Error(err))
		return
	}

	pe.pendingMu.Lock()
	pe.pending[seq] = now
	pe.pendingMu.Unlock()
	if pe.state.Load() == stateRegistered {
		pe.state.Store(stateProbing)
	}

	if _, err := e.conn.WriteToUDP(msg, pe.addr); err != nil {
		e.logger.Error("send ping", zap.String("peer", pe.nodeID), zap.Error(err))
		return
	}

	e.wg.Add(1)
	go e.expireProbe(ctx, pe, seq)
}

func (e *Engine) expireProbe(ctx context.Context, pe *peerEntry, seq uint64) {
	defer e.wg.Done()
	timer := time.NewTimer(e.cfg.ProbeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	pe.pendingMu.Lock()
	sentAt, stillPending := pe.pending[seq]
	delete(pe.pending, seq)
	pe.pendingMu.Unlock()

	if !stillPending {
		return
	}

	pe.historyMu.Lock()
	pe.history.push(PingRecord{Lost: true, SentAt: sentAt})
	pe.historyMu.Unlock()
	pe.state.Store(stateSilent)
	metrics.PeerUnreachableTotal.WithLabelValues(pe.nodeID).Inc()
}

func (e *Engine) receiveLoop(ctx context.Context) {
	defer e.wg.Done()
	buf := make([]byte, 64*1024)

	for {
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("read udp", zap.Error(err))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		go e.handleDatagram(data)
	}
}

func (e *Engine) handleDatagram(data []byte) {
	payload, err := decodeEnvelope(e.secret, data)
	if err != nil {
		if err == errBadSignature {
			metrics.AuthFailuresTotal.WithLabelValues("unknown").Inc()
		}
		e.logger.Warn("dropping datagram", zap.Error(err))
		return
	}

	t, err := peekType(payload)
	if err != nil {
		e.logger.Warn("dropping datagram", zap.Error(err))
		return
	}

	switch t {
	case msgPing:
		e.handlePing(payload)
	case msgPong:
		e.handlePong(payload)
	default:
		e.logger.Warn("unknown message type", zap.String("type", string(t)))
	}
}

func (e *Engine) handlePing(payload []byte) {
	var ping pingPayload
	if err := json.Unmarshal(payload, &ping); err != nil {
		e.logger.Warn("malformed ping", zap.Error(err))
		return
	}

	e.mu.RLock()
	pe, known := e.peers[ping.Src]
	e.mu.RUnlock()
	if !known {
		return // only reply to registered peers
	}

	pong := pongPayload{
		Type:            msgPong,
		Src:             e.cfg.NodeID,
		Dest:            ping.Src,
		Seq:             ping.Seq,
		OrigTimestampNs: ping.TimestampNs,
		PongTimestampNs: time.Now().UnixNano(),
	}
	msg, err := encodeEnvelope(e.secret, pong)
	if err != nil {
		e.logger.Error("encode pong", zap.Error(err))
		return
	}
	if _, err := e.conn.WriteToUDP(msg, pe.addr); err != nil {
		e.logger.Error("send pong", zap.String("peer", ping.Src), zap.Error(err))
	}
}

func (e *Engine) handlePong(payload []byte) {
	var pong pongPayload
	if err := json.Unmarshal(payload, &pong); err != nil {
		e.logger.Warn("malformed pong", zap.Error(err))
		return
	}

	e.mu.RLock()
	pe, known := e.peers[pong.Src]
	e.mu.RUnlock()
	if !known {
		return
	}

	pe.pendingMu.Lock()
	sendTime, ok := pe.pending[pong.Seq]
	delete(pe.pending, pong.Seq)
	pe.pendingMu.Unlock()
	if !ok {
		return // already timed out and recorded as lost
	}

	rtt := time.Since(sendTime)
	latencyMs := rtt.Seconds() * 1000

	pe.historyMu.Lock()
	pe.history.push(PingRecord{LatencyMs: latencyMs, SentAt: sendTime})
	pe.historyMu.Unlock()
	pe.state.Store(stateResponsive)
	metrics.ProbeRoundTripSeconds.WithLabelValues(pe.nodeID).Observe(rtt.Seconds())
}
