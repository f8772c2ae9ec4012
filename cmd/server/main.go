package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/api"
	"github.com/mavleo96/ledger-partition/internal/attack"
	"github.com/mavleo96/ledger-partition/internal/cluster"
	"github.com/mavleo96/ledger-partition/internal/config"
	"github.com/mavleo96/ledger-partition/internal/consensus"
	"github.com/mavleo96/ledger-partition/internal/database"
	"github.com/mavleo96/ledger-partition/internal/hashrouter"
	"github.com/mavleo96/ledger-partition/internal/metrics"
	"github.com/mavleo96/ledger-partition/internal/netops"
	"github.com/mavleo96/ledger-partition/internal/overlay"
	"github.com/mavleo96/ledger-partition/internal/rpc"
	"github.com/mavleo96/ledger-partition/internal/validation"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func main() {
	log.SetFormatter(&log.TextFormatter{TimestampFormat: "15:04.000", FullTimestamp: true})

	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	// Load configuration
	// Node, peers, clusters and genesis accounts are read from the config file
	cfg, err := config.ParseConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	// Create ledger database
	dbPath := filepath.Join(cfg.DBDir, cfg.Node.ID+".db")
	if err := os.MkdirAll(cfg.DBDir, 0755); err != nil {
		log.Fatal(err)
	}
	ledgerDB := &database.Database{}
	if err := ledgerDB.InitDB(dbPath, cfg.GenesisAccounts()); err != nil {
		log.Fatal(err)
	}
	defer ledgerDB.Close()
	log.Infof("Ledger initialized at %s with %d genesis accounts", dbPath, len(cfg.Genesis))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Overlay: every configured peer starts linked
	router := hashrouter.CreateHashRouter(cfg.RouterCapacity)
	metrics.RegisterSuppressionSize(router.Len)
	handles := make([]overlay.Peer, 0, len(cfg.Peers))
	for _, node := range cfg.Peers {
		handles = append(handles, overlay.CreateGRPCPeer(node))
	}
	peers := overlay.CreateOverlay(handles, router, 0)
	controller := cluster.CreateController(peers, cluster.TableFromConfig(cfg.Clusters))
	if _, err := controller.ApplyCluster(cluster.All); err != nil {
		log.Warnf("Some peers could not be linked: %v", err)
	}

	// Consensus stand-in
	driver := consensus.CreateRoundDriver(cfg.Consensus.Open, cfg.Consensus.Establish, cfg.Consensus.Accepted)
	gate := consensus.CreatePhaseGate(driver, cfg.PhaseGate.PollInterval)

	// Submission engines and pipelines
	rules := validation.Rules{BaseFee: cfg.Fees.BaseFee, EnabledTypes: validation.DefaultRules().EnabledTypes}
	limits := validation.Config{MaxFee: cfg.Fees.MaxFee, MaxAmount: cfg.Fees.MaxAmount}
	pipelineConfig := rpc.PipelineConfig{CheckSigs: cfg.CheckSigs, CanSign: cfg.CanSign, Rules: rules, Limits: limits}
	master := netops.CreateTxMaster(ledgerDB, cfg.RouterCapacity)

	ledgerEngine := netops.CreateLedgerEngine(ledgerDB, router, peers, rules, limits)
	if cfg.Fees.OpenLedgerFee > 0 {
		ledgerEngine.SetOpenLedgerFee(cfg.Fees.OpenLedgerFee)
	}
	pipeline := rpc.CreatePipeline(router, master, ledgerEngine, ledgerDB, pipelineConfig)

	// The experiment hands its transactions only to the peers linked at the time
	relayEngine := netops.CreateRelayEngine(peers, router)
	injectPipeline := rpc.CreatePipeline(router, master, relayEngine, ledgerDB, pipelineConfig)

	phases := make([]consensus.Phase, 0, len(cfg.Attack.Phases))
	for _, name := range cfg.Attack.Phases {
		phase, err := consensus.ParsePhase(name)
		if err != nil {
			log.Fatal(err)
		}
		phases = append(phases, phase)
	}
	params := attack.Params{
		Secret:  cfg.Attack.Secret,
		Phases:  phases,
		MaxWait: cfg.PhaseGate.MaxWait,
		Amount:  cfg.Attack.Amount,
		Fee:     cfg.Attack.Fee,
	}
	if cfg.Attack.DestinationA != "" {
		params.DestinationA = common.HexToAddress(cfg.Attack.DestinationA)
	}
	if cfg.Attack.DestinationB != "" {
		params.DestinationB = common.HexToAddress(cfg.Attack.DestinationB)
	}
	orchestrator, err := attack.CreateOrchestrator(params, controller, gate, injectPipeline, ledgerDB)
	if err != nil {
		log.Fatal(err)
	}
	defer orchestrator.Close()

	// Create gRPC server
	lis, err := net.Listen("tcp", cfg.Node.Address)
	if err != nil {
		log.Fatal(err)
	}
	grpcServer := grpc.NewServer()
	server := rpc.CreateServer(cfg.Node.ID, pipeline, orchestrator, driver, peers, controller, ledgerDB, cfg.GenesisAccounts())
	api.RegisterAdminServer(grpcServer, rpc.CreateAdminService(server, cfg.Admins))
	api.RegisterPeerServer(grpcServer, rpc.CreatePeerService(pipeline))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	// Start gRPC server, metrics listener and round driver
	var wg sync.WaitGroup
	wg.Go(func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal(err)
		}
	})
	wg.Go(func() {
		driver.Run(ctx)
	})
	wg.Go(func() {
		for id, err := range peers.Unreachable(ctx) {
			log.Warnf("Peer %s is not reachable yet: %v", id, err)
		}
	})
	if metricsServer != nil {
		wg.Go(func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err)
			}
		})
		log.Infof("Metrics listening on %s", cfg.MetricsAddr)
	}
	log.Infof("Node %s listening on %s with %d peers", cfg.Node.ID, cfg.Node.Address, len(cfg.Peers))

	<-ctx.Done()
	log.Warn("Shutting down")
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	grpcServer.GracefulStop()
	for _, peer := range peers.Peers() {
		peer.Close()
	}

	// Wait for gRPC server, metrics listener and round driver to finish
	wg.Wait()
}
