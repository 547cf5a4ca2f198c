package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vanguardchain/vanguard/authority"
	"github.com/vanguardchain/vanguard/babe"
	"github.com/vanguardchain/vanguard/blocktree"
	"github.com/vanguardchain/vanguard/crypto"
	"github.com/vanguardchain/vanguard/epoch"
	"github.com/vanguardchain/vanguard/executor"
	"github.com/vanguardchain/vanguard/grandpa"
	"github.com/vanguardchain/vanguard/log"
	"github.com/vanguardchain/vanguard/network"
	"github.com/vanguardchain/vanguard/rpc"
	vgruntime "github.com/vanguardchain/vanguard/runtime"
	"github.com/vanguardchain/vanguard/storage"
	chainsync "github.com/vanguardchain/vanguard/sync"
	"github.com/vanguardchain/vanguard/txpool"
	"github.com/vanguardchain/vanguard/types"
)

// epochLengthSlots is the number of BABE slots per epoch. A single-node
// dev chain has no reason to vary this at runtime, so it is fixed rather
// than threaded through Config.
const epochLengthSlots = 2400

// Node is the top-level vanguard node: it wires storage, the block tree,
// the authority set manager, the epoch store, the block validator and
// executor, the BABE producer, the GRANDPA voter, the transaction pool and
// the synchronizer to the network transport and RPC push server, and
// manages their lifecycle through a ServiceRegistry.
type Node struct {
	config *Config
	logger *log.Logger

	db         storage.Database
	tree       *blocktree.Tree
	auth       *authority.Manager
	epochs     *epoch.Store
	trie       *vgruntime.Trie
	runtime    *vgruntime.Reference
	signer     *crypto.LocalSigner
	validator  *babe.Validator
	producer   *babe.Producer
	voter      *grandpa.Voter
	exec       *executor.Executor
	pool       *txpool.Pool
	journal    *txpool.Journal
	host       *network.Host
	rpcServer  *rpc.Server
	httpServer *http.Server
	syncer     *chainsync.Synchronizer

	health *HealthChecker
	events *EventBus

	registry *ServiceRegistry

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// New creates a new Node with the given configuration, constructing every
// core subsystem and wiring its collaborators together, but starting
// nothing. Call Start to bring the node's services up.
func New(config *Config) (*Node, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var logger *log.Logger
	if config.LogFile != "" {
		logger = log.NewFile(slogLevel(config.LogLevel), log.DefaultRotatingFileConfig(config.ResolvePath(config.LogFile))).Module("node")
	} else {
		logger = log.New(slogLevel(config.LogLevel)).Module("node")
	}

	n := &Node{
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
		health: NewHealthChecker(),
		events: NewEventBus(256),
	}

	n.db = storage.NewMemoryDB()

	signer, err := crypto.GenerateLocalSigner()
	if err != nil {
		return nil, fmt.Errorf("generate authoring key: %w", err)
	}
	n.signer = signer

	genesisHeader := &types.Header{}
	genesisInfo := genesisHeader.Info()
	genesisSet := types.AuthoritySet{
		Authorities: []types.Authority{{ID: signer.LocalAuthorityID(), Weight: 1}},
		SetID:       0,
	}

	n.tree = blocktree.New(genesisHeader, unitWeight)

	auth, err := authority.New(n.db, n.tree, genesisInfo, genesisSet)
	if err != nil {
		return nil, fmt.Errorf("init authority manager: %w", err)
	}
	n.auth = auth

	epochs, err := epoch.New(n.db, epoch.FromZero)
	if err != nil {
		return nil, fmt.Errorf("init epoch store: %w", err)
	}
	n.epochs = epochs

	genesisEpoch := types.EpochDescriptor{
		EpochIndex:    0,
		StartSlot:     0,
		DurationSlots: epochLengthSlots,
		Authorities:   genesisSet.Authorities,
	}

	n.trie = vgruntime.NewTrie(n.db)
	n.runtime = vgruntime.NewReference(n.trie)

	n.validator = babe.NewValidator(n.epochs, n.signer, config.BabeC, epochLengthSlots)

	n.journal = txpool.NewJournal(n.db)
	n.pool = txpool.New(txpool.DefaultConfig(), n.journal)

	n.host = network.NewHost(logger.Module("network"))
	n.rpcServer = rpc.NewServer()

	n.exec = executor.New(n.db, n.tree, n.auth, n.epochs, n.validator, n.runtime, n.trie, n.pool, n.rpcServer)
	if err := n.exec.SeedGenesisEpoch(genesisEpoch); err != nil {
		return nil, fmt.Errorf("seed genesis epoch: %w", err)
	}

	proposer := txpool.NewProposer(n.pool)
	n.producer = babe.NewProducer(n.signer, proposer, n.tree, n.exec, &blockGossip{host: n.host}, config.BabeC)
	if err := n.producer.SetEpoch(genesisEpoch); err != nil {
		return nil, fmt.Errorf("seed producer epoch: %w", err)
	}

	livenessTimeout := time.Duration(config.GrandpaLivenessTimeout) * time.Millisecond
	n.voter = grandpa.NewVoter(n.db, n.signer, n.tree, n.tree, &voteGossip{host: n.host}, &finalizationSink{exec: n.exec}, livenessTimeout)

	fetcher := chainsync.NewHostFetcher(n.host)
	n.syncer = chainsync.New(fetcher, n.exec, logger.Module("sync"))

	wireProtocolHandlers(n.host, n.tree, n.exec, n.pool, n.voter, n.syncer, logger.Module("handlers"))

	n.httpServer = &http.Server{
		Addr:    config.RPCAddr(),
		Handler: n.rpcServer,
	}

	n.registry = NewServiceRegistry(16)
	if err := n.registerServices(); err != nil {
		return nil, fmt.Errorf("register services: %w", err)
	}

	return n, nil
}

func unitWeight(*types.Header) uint64 { return 1 }

func slogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (n *Node) registerServices() error {
	if err := n.registry.Register(&ServiceDescriptor{
		Name:     "network",
		Service:  &networkService{host: n.host, addr: n.config.P2PAddr()},
		Priority: 0,
	}); err != nil {
		return err
	}

	if err := n.registry.Register(&ServiceDescriptor{
		Name:     "rpc",
		Service:  &rpcService{httpServer: n.httpServer, logger: n.logger.Module("rpc")},
		Priority: 10,
	}); err != nil {
		return err
	}

	if n.config.BabeSlotDuration > 0 {
		if err := n.registry.Register(&ServiceDescriptor{
			Name:         "babe",
			Service:      &babeService{producer: n.producer, slotDuration: time.Duration(n.config.BabeSlotDuration) * time.Millisecond},
			Dependencies: []string{"network"},
			Priority:     20,
		}); err != nil {
			return err
		}
	}

	pollInterval := time.Duration(n.config.GrandpaLivenessTimeout) * time.Millisecond / 4
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if err := n.registry.Register(&ServiceDescriptor{
		Name:         "grandpa",
		Service:      &grandpaService{voter: n.voter, tree: n.tree, auth: n.auth, pollInterval: pollInterval},
		Dependencies: []string{"network"},
		Priority:     20,
	}); err != nil {
		return err
	}

	return nil
}

// Start starts all node subsystems through the service registry, in
// dependency order.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return errors.New("node already running")
	}

	n.logger.Info("starting vanguard node", "chain", n.config.Chain, "sync_mode", n.config.SyncMode)

	if errs := n.registry.Start(); len(errs) > 0 {
		return fmt.Errorf("start services: %v", errs)
	}

	n.health.SetStartTime(time.Now().Unix())
	n.running = true
	n.logger.Info("vanguard node started")
	return nil
}

// Stop gracefully shuts down all subsystems in reverse start order.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	n.logger.Info("stopping vanguard node")

	var firstErr error
	for _, err := range n.registry.Stop() {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := n.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	n.running = false
	close(n.stop)
	n.logger.Info("vanguard node stopped")
	return firstErr
}

// Wait blocks until the node is stopped.
func (n *Node) Wait() {
	<-n.stop
}

// TxPool returns the transaction pool.
func (n *Node) TxPool() *txpool.Pool {
	return n.pool
}

// Executor returns the block executor.
func (n *Node) Executor() *executor.Executor {
	return n.exec
}

// Config returns the node configuration.
func (n *Node) Config() *Config {
	return n.config
}

// Health returns the node's subsystem health checker.
func (n *Node) Health() *HealthChecker {
	return n.health
}

// Running reports whether the node is currently running.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// networkService adapts network.Host to the Service interface.
type networkService struct {
	host   *network.Host
	addr   string
	cancel context.CancelFunc
}

func (s *networkService) Name() string { return "network" }

func (s *networkService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return s.host.Listen(ctx, s.addr)
}

func (s *networkService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.host.Close()
}

// rpcService adapts the RPC push server's http.Server to the Service
// interface.
type rpcService struct {
	httpServer *http.Server
	logger     *log.Logger
}

func (s *rpcService) Name() string { return "rpc" }

func (s *rpcService) Start() error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("rpc server error", "err", err)
		}
	}()
	return nil
}

func (s *rpcService) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// babeService drives the BABE producer's per-slot authoring loop on a
// wall-clock ticker. Slot numbers are derived from wall-clock time so a
// restarted node resumes at the slot the clock says it should be in,
// rather than from 0.
type babeService struct {
	producer     *babe.Producer
	slotDuration time.Duration
	cancel       context.CancelFunc
	done         chan struct{}
}

func (s *babeService) Name() string { return "babe" }

func (s *babeService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

func (s *babeService) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.slotDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			slot := types.SlotNumber(now.UnixMilli() / s.slotDuration.Milliseconds())
			_ = s.producer.RunSlot(ctx, slot, s.slotDuration)
		}
	}
}

func (s *babeService) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// grandpaService drives the GRANDPA voter's round progression: each tick
// it prevotes and precommits the local chain head, and once a round
// finalizes it starts the next round based at the new finalized block.
// Real GRANDPA deployments drive prevote/precommit off chain-head and
// timeout events rather than a fixed poll, but a fixed poll is sufficient
// for a single-or-few-authority chain.
type grandpaService struct {
	voter        *grandpa.Voter
	tree         *blocktree.Tree
	auth         *authority.Manager
	pollInterval time.Duration
	roundSeq     uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *grandpaService) Name() string { return "grandpa" }

func (s *grandpaService) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	base := s.tree.LastFinalized()
	set, err := s.auth.Authorities(base)
	if err != nil {
		cancel()
		return err
	}
	s.voter.StartRound(s.roundSeq, set, base)

	go s.run(ctx)
	return nil
}

func (s *grandpaService) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	lastFinalized := s.voter.LastFinalized()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head := s.tree.DeepestLeaf()
			_ = s.voter.CastPrevote(ctx, head)
			_ = s.voter.CastPrecommit(ctx, head)

			if finalized := s.voter.LastFinalized(); finalized != lastFinalized {
				lastFinalized = finalized
				s.roundSeq++
				if set, err := s.auth.Authorities(finalized); err == nil {
					s.voter.StartRound(s.roundSeq, set, finalized)
				}
			}
		}
	}
}

func (s *grandpaService) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
