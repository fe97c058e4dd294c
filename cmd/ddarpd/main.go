package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/ddarp/internal/config"
	"github.com/route-beacon/ddarp/internal/dataplane"
	"github.com/route-beacon/ddarp/internal/metrics"
	"github.com/route-beacon/ddarp/internal/node"
	"github.com/route-beacon/ddarp/internal/topology"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runDaemon()
	case "validate-config":
		runValidateConfig()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ddarpd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run              Start the routing daemon")
	fmt.Println("  validate-config  Parse and validate the configuration file, then exit")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runValidateConfig() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()
	logger.Info("configuration valid", zap.String("node_id", cfg.Node.NodeID))
}

func runDaemon() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting ddarpd",
		zap.String("node_id", cfg.Node.NodeID),
		zap.String("node_type", cfg.Node.NodeType),
		zap.Uint16("owl_port", cfg.OWL.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, closeDriver, err := buildDataPlaneDriver(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build data plane driver", zap.Error(err))
	}
	if closeDriver != nil {
		defer closeDriver()
	}

	n := node.New(cfg, driver, logger)
	if err := n.Start(ctx); err != nil {
		logger.Fatal("failed to start node", zap.Error(err))
	}

	for peerID, peer := range cfg.Peers {
		peerType := topology.NodeRegular
		if err := n.AddPeer(ctx, peerID, peer.Endpoint, peerType); err != nil {
			logger.Error("failed to add configured peer", zap.String("peer", peerID), zap.Error(err))
		}
	}

	logger.Info("ddarpd running", zap.Int("configured_peers", len(cfg.Peers)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		n.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("node stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, node may not have fully stopped")
	}

	logger.Info("ddarpd stopped")
}

// buildDataPlaneDriver constructs the configured DataPlaneDriver. If
// Kafka is disabled, it falls back to a no-op driver so the rest of the
// pipeline (OWL, topology, routing) still runs end to end without an
// external dependency.
func buildDataPlaneDriver(cfg *config.Config, logger *zap.Logger) (dataplane.DataPlaneDriver, func(), error) {
	if !cfg.DataPlane.Kafka.Enabled {
		return noopDriver{}, nil, nil
	}

	driver, err := dataplane.NewKafkaDataPlaneDriver(
		cfg.DataPlane.Kafka.Brokers,
		cfg.DataPlane.Kafka.Topic,
		cfg.DataPlane.Kafka.ClientID,
		logger,
	)
	if err != nil {
		return nil, nil, err
	}
	return driver, driver.Close, nil
}

// noopDriver is used when no data-plane backend is configured; it
// reports healthy and discards every call.
type noopDriver struct{}

func (noopDriver) AddPeer(ctx context.Context, nodeID, endpoint string) error { return nil }
func (noopDriver) RemovePeer(ctx context.Context, nodeID string) error       { return nil }
func (noopDriver) ApplyRoute(ctx context.Context, update dataplane.RouteUpdate) error {
	return nil
}
func (noopDriver) WithdrawRoute(ctx context.Context, destination string) error { return nil }
func (noopDriver) IsHealthy() bool                                            { return true }
func (noopDriver) Status() dataplane.Status                                   { return dataplane.Status{Healthy: true} }
