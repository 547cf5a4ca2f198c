// Command vanguard is the main entry point for the vanguard node.
//
// Usage:
//
//	vanguard [flags]
//
// Flags:
//
//	--datadir              Data directory path
//	--chain                Chain to join: mainnet, testnet, dev (default: dev)
//	--port                 P2P listening port (default: 30333)
//	--rpc.port             RPC push-server port (default: 9944)
//	--syncmode             Sync mode: full, warp (default: full)
//	--maxpeers             Max P2P peers (default: 50)
//	--babe.slot-duration   BABE slot length in milliseconds (default: 6000)
//	--grandpa.timeout      GRANDPA round liveness timeout in milliseconds (default: 20000)
//	--verbosity            Log level 0-5 (default: 3)
//	--metrics              Enable the Prometheus metrics endpoint (default: false)
//	--log.file             Rotated log file path, relative to datadir (default: disabled)
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/vanguardchain/vanguard/metrics"
	"github.com/vanguardchain/vanguard/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

// run is the actual entry point, returning an exit code. It accepts the
// full os.Args (including the program name, as cli.App expects) so it can
// be exercised in isolation without calling os.Exit directly.
func run(args []string) int {
	exitCode := 0

	_, err := parseFlags(args, func(c *node.Config) error {
		exitCode = runNode(c)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vanguard: %v\n", err)
		return 1
	}
	return exitCode
}

// appFlags builds the cli.Flag set bound to cfg's fields via Destination,
// so a parsed invocation mutates cfg directly.
func appFlags(cfg *node.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "datadir", Value: cfg.DataDir, Usage: "data directory path", Destination: &cfg.DataDir},
		&cli.StringFlag{Name: "chain", Value: cfg.Chain, Usage: "chain to join (mainnet, testnet, dev)", Destination: &cfg.Chain},
		&cli.IntFlag{Name: "port", Value: cfg.P2PPort, Usage: "P2P listening port", Destination: &cfg.P2PPort},
		&cli.IntFlag{Name: "rpc.port", Value: cfg.RPCPort, Usage: "RPC push-server port", Destination: &cfg.RPCPort},
		&cli.StringFlag{Name: "syncmode", Value: cfg.SyncMode, Usage: "sync mode (full, warp)", Destination: &cfg.SyncMode},
		&cli.IntFlag{Name: "maxpeers", Value: cfg.MaxPeers, Usage: "maximum number of P2P peers", Destination: &cfg.MaxPeers},
		&cli.IntFlag{Name: "babe.slot-duration", Value: cfg.BabeSlotDuration, Usage: "BABE slot length in milliseconds", Destination: &cfg.BabeSlotDuration},
		&cli.IntFlag{Name: "grandpa.timeout", Value: cfg.GrandpaLivenessTimeout, Usage: "GRANDPA round liveness timeout in milliseconds", Destination: &cfg.GrandpaLivenessTimeout},
		&cli.IntFlag{Name: "verbosity", Value: cfg.Verbosity, Usage: "log level 0-5 (0=silent, 5=trace)", Destination: &cfg.Verbosity},
		&cli.BoolFlag{Name: "metrics", Value: cfg.Metrics, Usage: "enable the Prometheus metrics endpoint", Destination: &cfg.Metrics},
		&cli.StringFlag{Name: "log.file", Value: cfg.LogFile, Usage: "rotated log file path, relative to datadir (empty disables file logging)", Destination: &cfg.LogFile},
	}
}

// newApp builds the cli.App, binding flags onto cfg and dispatching to
// onParsed once flags are resolved. --version and --help are handled by
// the library itself and never reach onParsed.
func newApp(cfg *node.Config, onParsed func(*node.Config) error) *cli.App {
	app := cli.NewApp()
	app.Name = "vanguard"
	app.Usage = "run a vanguard consensus node"
	app.Version = fmt.Sprintf("%s (commit %s)", version, commit)
	app.Flags = appFlags(cfg)
	app.Action = func(c *cli.Context) error {
		return onParsed(cfg)
	}
	return app
}

// parseFlags parses args against a fresh DefaultConfig, invoking onParsed
// with the result unless --version/--help short-circuited first. It
// returns the parsed config so tests can inspect it independently of
// onParsed's side effects.
func parseFlags(args []string, onParsed func(*node.Config) error) (node.Config, error) {
	cfg := node.DefaultConfig()
	app := newApp(&cfg, onParsed)
	err := app.Run(args)
	return cfg, err
}

// runNode validates cfg, boots a Node, and blocks until a termination
// signal triggers graceful shutdown.
func runNode(cfg *node.Config) int {
	cfg.LogLevel = node.VerbosityToLogLevel(cfg.Verbosity)

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("vanguard %s starting", version)
	log.Printf("  datadir:       %s", cfg.DataDir)
	log.Printf("  chain:         %s", cfg.Chain)
	log.Printf("  p2p port:      %d", cfg.P2PPort)
	log.Printf("  rpc port:      %d", cfg.RPCPort)
	log.Printf("  max peers:     %d", cfg.MaxPeers)
	log.Printf("  sync mode:     %s", cfg.SyncMode)
	log.Printf("  babe slot ms:  %d", cfg.BabeSlotDuration)
	log.Printf("  grandpa to ms: %d", cfg.GrandpaLivenessTimeout)
	log.Printf("  verbosity:     %d (%s)", cfg.Verbosity, cfg.LogLevel)
	log.Printf("  metrics:       %v", cfg.Metrics)
	if cfg.LogFile != "" {
		log.Printf("  log file:      %s", cfg.ResolvePath(cfg.LogFile))
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return 1
	}

	if err := cfg.InitDataDir(); err != nil {
		log.Printf("failed to initialize datadir: %v", err)
		return 1
	}
	log.Printf("data directory initialized: %s", cfg.DataDir)

	n, err := node.New(cfg)
	if err != nil {
		log.Printf("failed to create node: %v", err)
		return 1
	}

	if cfg.Metrics {
		startMetricsServer(cfg)
	}

	if err := n.Start(); err != nil {
		log.Printf("failed to start node: %v", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	if err := n.Stop(); err != nil {
		log.Printf("error during shutdown: %v", err)
		return 1
	}

	log.Println("shutdown complete")
	return 0
}

// startMetricsServer serves the node's Registry to Prometheus on its own
// listener, separate from the RPC push server.
func startMetricsServer(cfg *node.Config) {
	exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.RPCPort+1000)
	srv := &http.Server{Addr: addr, Handler: exporter.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("  metrics addr:  %s/metrics", addr)
}
