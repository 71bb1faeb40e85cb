package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/blockengine/app/services/node/handlers"
	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/disk"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/leveldb"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/memory"
	"github.com/ardanlabs/blockengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/blockengine/foundation/blockchain/identity"
	"github.com/ardanlabs/blockengine/foundation/blockchain/network/wsnet"
	"github.com/ardanlabs/blockengine/foundation/blockchain/worker"
	"github.com/ardanlabs/blockengine/foundation/events"
	"github.com/ardanlabs/blockengine/foundation/logger"
	"github.com/ardanlabs/blockengine/foundation/nameservice"
	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Node struct {
			GenesisPath     string        `conf:"help:genesis file or empty for the built-in genesis"`
			KeyPath         string        `conf:"help:producer key file or empty to only follow the chain"`
			Store           string        `conf:"default:disk,help:memory|disk|leveldb"`
			DBPath          string        `conf:"default:zblock/blocks"`
			SelectStrategy  string        `conf:"default:fifo"`
			SnapshotRetain  int           `conf:"default:64"`
			ProduceInterval time.Duration `conf:"default:10s"`
			ProduceEmpty    bool          `conf:"default:false"`
			SyncTimeout     time.Duration `conf:"default:5s"`
			StatusInterval  time.Duration `conf:"default:1m"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
		P2P struct {
			ID     string        `conf:"help:node id or empty for a random id"`
			Host   string        `conf:"default:0.0.0.0:9180"`
			Peers  []string      `conf:"help:hosts of the peers to dial"`
			Redial time.Duration `conf:"default:10s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "block execution and chain progression node",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account addresses.
	// The names come from the key file names in the configured folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	for account, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", account)
	}

	// =========================================================================
	// Blockchain Support

	gen := genesis.Default()
	if cfg.Node.GenesisPath != "" {
		gen, err = genesis.Load(cfg.Node.GenesisPath)
		if err != nil {
			return fmt.Errorf("unable to load genesis: %w", err)
		}
	}

	store, err := openStore(cfg.Node.Store, cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open %s store: %w", cfg.Node.Store, err)
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	chainCfg := chain.Config{
		Genesis:        gen,
		Store:          store,
		SelectStrategy: cfg.Node.SelectStrategy,
		SnapshotRetain: cfg.Node.SnapshotRetain,
		ProduceEmpty:   cfg.Node.ProduceEmpty,
		EvHandler:      ev,
	}

	// Without a key this node follows the chain and never produces blocks.
	if cfg.Node.KeyPath != "" {
		key, err := identity.Load(cfg.Node.KeyPath)
		if err != nil {
			store.Close()
			return fmt.Errorf("unable to load producer key: %w", err)
		}
		chainCfg.Identity = key

		log.Infow("startup", "status", "producer identity loaded", "account", key.Account())
	}

	bc, err := chain.New(chainCfg)
	if err != nil {
		store.Close()
		return err
	}
	defer bc.Close()

	// =========================================================================
	// Peer To Peer Support

	p2p := wsnet.New(wsnet.Config{
		ID:        cfg.P2P.ID,
		Host:      cfg.P2P.Host,
		Peers:     cfg.P2P.Peers,
		Redial:    cfg.P2P.Redial,
		EvHandler: ev,
	})

	p2pCtx, p2pCancel := context.WithCancel(context.Background())
	defer p2pCancel()

	// Make a channel to listen for errors coming from the listeners. Use a
	// buffered channel so the goroutines can exit if we don't collect the error.
	serverErrors := make(chan error, 3)

	go func() {
		log.Infow("startup", "status", "p2p router started", "host", cfg.P2P.Host, "id", p2p.ID())
		if err := p2p.Listen(p2pCtx); err != nil {
			serverErrors <- fmt.Errorf("p2p: %w", err)
		}
	}()

	// The worker package implements the duties of the node: relaying,
	// syncing and producing blocks. Every change to the chain runs on the
	// worker's execution queue.
	produceInterval := cfg.Node.ProduceInterval
	if chainCfg.Identity == nil {
		produceInterval = 0
	}

	wrk := worker.Run(worker.Config{
		Chain:           bc,
		Network:         p2p,
		ProduceInterval: produceInterval,
		SyncTimeout:     cfg.Node.SyncTimeout,
		StatusInterval:  cfg.Node.StatusInterval,
		EvHandler:       ev,
	})
	defer wrk.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log, bc)

	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	muxCfg := handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Chain:    bc,
		Worker:   wrk,
		NS:       ns,
		Evts:     evts,
	}

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      handlers.PublicMux(muxCfg),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      handlers.PrivateMux(muxCfg),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// openStore constructs the block store of the configured kind.
func openStore(kind string, path string) (database.Store, error) {
	switch kind {
	case "memory":
		return memory.New(), nil
	case "disk":
		return disk.New(path)
	case "leveldb":
		return leveldb.New(path)
	}

	return nil, fmt.Errorf("unknown store %q", kind)
}
