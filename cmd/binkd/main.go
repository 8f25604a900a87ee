// Command binkd runs a Binkp mailer: "serve" listens for inbound calls on a
// single address and port, "call" originates a single outbound session.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ftnx/go-binkp/binkp"
	"github.com/ftnx/go-binkp/internal/config"
	"github.com/ftnx/go-binkp/internal/inbound"
	"github.com/ftnx/go-binkp/internal/logging"
	"github.com/ftnx/go-binkp/internal/outbound"
)

var (
	configPath  = flag.String("c", "binkd.yaml", "path to the configuration file")
	mailDir     = flag.String("maildir", "./mail", "root of the outbound/inbound file areas")
	listenAddr  = flag.String("listen", "0.0.0.0", "address to bind when serving")
	maxSessions = flag.Int("max-sessions", 0, "refuse inbound calls with M_BSY once this many answerer sessions are active (0 = unlimited)")
	verbose     = flag.Bool("v", false, "verbose console output")
	version     = flag.Bool("version", false, "show version")
)

// sessionCounter tracks active answerer sessions so runServe's accept loop
// can refuse new calls with M_BSY once maxSessions is reached, per spec.md's
// answerer-busy behavior.
type sessionCounter struct {
	active int64
	limit  int
}

func (c *sessionCounter) shouldRefuseBusy() (bool, string) {
	if c.limit <= 0 {
		return false, ""
	}
	// active already counts the session asking, which acquired before Run.
	if atomic.LoadInt64(&c.active) > int64(c.limit) {
		return true, "too many sessions"
	}
	return false, ""
}

func (c *sessionCounter) acquire() { atomic.AddInt64(&c.active, 1) }
func (c *sessionCounter) release() { atomic.AddInt64(&c.active, -1) }

const versionString = "binkd version 0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Println(versionString)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binkd: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Console:    cfg.Logging.Console || *verbose,
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binkd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "serve":
		runServe(ctx, cfg, logger)
	case "call":
		if len(args) < 2 {
			showUsage(1)
		}
		runCall(ctx, cfg, logger, args[1])
	default:
		showUsage(1)
	}
}

// runServe accepts connections on -listen, at the first configured
// network's port (DefaultPort when unset), until ctx is cancelled, handing
// each to the answerer role on its own goroutine —
// each Session itself remains the single-threaded cooperative machine spec
// §5 describes; only the accept loop is concurrent.
func runServe(ctx context.Context, cfg *config.File, logger *logging.Logger) {
	port := binkp.DefaultPort
	if id := firstNetworkID(cfg); id != "" {
		if n := cfg.Networks[id]; n.RemotePort != 0 {
			port = n.RemotePort
		}
	}

	ln, err := binkp.Listen(*listenAddr, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binkd: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	counter := &sessionCounter{limit: *maxSessions}

	fmt.Printf("binkd: listening on %s:%d\n", *listenAddr, port)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warning("", "accept: %v", err)
				continue
			}
		}
		go handleInbound(ctx, conn, cfg, logger, counter)
	}
}

func handleInbound(ctx context.Context, conn net.Conn, cfg *config.File, logger *logging.Logger, counter *sessionCounter) {
	networkID, netConfig := matchIncoming(cfg, conn)
	sink := inbound.New(*mailDir, networkID)

	sess := binkp.NewSession(conn, binkp.RoleAnswerer, netConfig,
		binkp.WithContext(ctx),
		binkp.WithLogger(logger),
		binkp.WithInboundSink(sink),
		binkp.WithCallbacks(&binkp.Callbacks{ShouldRefuseBusy: counter.shouldRefuseBusy}),
	)
	counter.acquire()
	defer counter.release()
	if err := sess.Run(); err != nil {
		logger.Error(sess.ID, "session ended: %v", err)
		return
	}
	logger.Info(sess.ID, "session complete")
}

// matchIncoming returns the network configuration used to answer an inbound
// call: always the first configured network (by firstNetworkID), including
// its shared secret. The remote's addresses and the connection are not
// consulted, so in a multi-network deployment every caller is authenticated
// against that one network's secret.
func matchIncoming(cfg *config.File, conn net.Conn) (string, binkp.NetworkConfig) {
	id := firstNetworkID(cfg)
	if id == "" {
		return "", binkp.NetworkConfig{}
	}
	nc, _ := cfg.NetworkConfig(id)
	return id, nc
}

// firstNetworkID returns the lexicographically first configured network ID,
// giving runServe and matchIncoming a deterministic choice instead of
// Go's randomized map iteration order.
func firstNetworkID(cfg *config.File) string {
	if len(cfg.Networks) == 0 {
		return ""
	}
	ids := make([]string, 0, len(cfg.Networks))
	for id := range cfg.Networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0]
}

func runCall(ctx context.Context, cfg *config.File, logger *logging.Logger, networkID string) {
	netConfig, err := cfg.NetworkConfig(networkID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binkd: %v\n", err)
		os.Exit(1)
	}

	conn, err := binkp.Dial(ctx, netConfig.RemoteHost, netConfig.RemotePort, 30*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "binkd: %v\n", err)
		os.Exit(1)
	}

	scanner := outbound.New(*mailDir)
	sink := inbound.New(*mailDir, networkID)

	sess := binkp.NewSession(conn, binkp.RoleOriginator, netConfig,
		binkp.WithContext(ctx),
		binkp.WithLogger(logger),
		binkp.WithOutboundScanner(scanner),
		binkp.WithInboundSink(sink),
	)
	if err := sess.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "binkd: call to %s failed: %v\n", networkID, err)
		os.Exit(1)
	}
	snap := sess.Stats()
	fmt.Printf("binkd: call to %s complete, sent %d received %d\n", networkID, snap.BytesSent, snap.BytesReceived)
}

func signalContext() (context.Context, context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `binkd - FidoNet Binkp store-and-forward mailer

Usage:
  binkd [options] serve
  binkd [options] call <network>

Options:
  -c PATH        configuration file (default "binkd.yaml")
  -maildir PATH  root of the outbound/inbound file areas (default "./mail")
  -listen ADDR   address to bind when serving (default "0.0.0.0")
  -max-sessions N refuse inbound calls with M_BSY beyond N concurrent sessions (default unlimited)
  -v             verbose console output
  -version       show version
`)
	os.Exit(exitcode)
}
