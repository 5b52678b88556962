// Command autarch bootstraps the full runtime: loads ambient config and
// per-agent rule files, builds the RPC client, wallet factory, market
// feed, and Runtime, then serves the SSE/HTTP surface until interrupted —
// the same ordered-init-steps-with-signal-handling shape cmd/bot/main.go
// used for the much larger multi-user trading bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/autarch/runtime/internal/adapters/config"
	"github.com/autarch/runtime/internal/agentconfig"
	"github.com/autarch/runtime/internal/decision"
	"github.com/autarch/runtime/internal/market"
	"github.com/autarch/runtime/internal/rpcclient"
	"github.com/autarch/runtime/internal/runtime"
	"github.com/autarch/runtime/internal/server"
	"github.com/autarch/runtime/internal/sse"
	"github.com/autarch/runtime/internal/wallet"
	"github.com/autarch/runtime/pkg/logger"
	"github.com/autarch/runtime/pkg/models"
)

func main() {
	rulesDir := flag.String("rules-dir", "./configs/agents", "directory of per-agent JSON rule files")
	table := flag.Bool("table", false, "print a table of agent states to stdout once after startup (debug)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nreceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx, *rulesDir, *table); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rulesDir string, printTable bool) error {
	_ = godotenv.Load() // optional .env, ignored if absent

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("autarch runtime starting",
		zap.Strings("rpcEndpoints", cfg.RPC.ResolvedEndpoints()),
		zap.Bool("demoMode", cfg.DemoMode),
	)

	agentConfigs, err := loadAgentConfigs(rulesDir)
	if err != nil {
		return fmt.Errorf("load agent configs: %w", err)
	}
	if len(agentConfigs) == 0 {
		return fmt.Errorf("no agent configs found in %s", rulesDir)
	}

	marketProvider := market.NewSimulatedProvider(100)
	marketProvider.Start(ctx, time.Second)
	go func() { <-ctx.Done(); marketProvider.Stop() }()

	rt := runtime.New(marketProvider)

	transport := rpcclient.NewHTTPTransport(0)
	rpcClient := rpcclient.NewClient(cfg.RPC.ClientConfig(rt.OnSimulationModeChange), transport)
	defer rpcClient.Cleanup()

	walletFactory := wallet.NewFactory(rpcClient)

	treasury, err := walletFactory.Treasury()
	if err != nil {
		return fmt.Errorf("derive treasury wallet: %w", err)
	}

	for i, agentCfg := range agentConfigs {
		agentID := i + 1
		w, err := walletFactory.Get(agentID)
		if err != nil {
			return fmt.Errorf("derive wallet for agent %d (%s): %w", agentID, agentCfg.Name, err)
		}
		if cfg.DemoMode {
			seedTreasuryAgent(ctx, treasury, w, agentID, agentCfg.Name)
		}
		dm := decision.NewRuleBasedModule(models.DefaultExecutionThreshold)
		rt.AddAgent(agentID, agentCfg, w, dm)
	}

	hub := sse.NewHub()
	hub.StartHeartbeat(ctx.Done())

	httpServer := server.New(cfg.Server.Addr(), rt, hub, cfg.Server.StaticDir)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			logger.Error("http server stopped with error", zap.Error(err))
		}
	}()

	rt.Start(ctx)

	if printTable {
		printStatesTable(rt)
	}

	<-ctx.Done()

	logger.Info("shutting down runtime...")
	rt.Stop()
	return httpServer.Shutdown(context.Background())
}

// seedTreasuryAgent gives agent a starting balance from the treasury so a
// freshly started demo run has non-zero balances to evaluate rules
// against instead of requiring an operator to fund agents out-of-band
// first (see SPEC_FULL.md's DEMO_MODE bootstrap supplement to §4.9's
// distributeSol). A failed seed is logged, not fatal — the RPC client's
// own simulation-mode fallback keeps the agent usable regardless.
func seedTreasuryAgent(ctx context.Context, treasury, agent wallet.Wallet, agentID int, name string) {
	result, err := treasury.DistributeSol(ctx, agent, decimal.NewFromFloat(models.DemoSeedSol))
	if err != nil {
		logger.Warn("demo treasury seed failed", zap.Int("agentId", agentID), zap.String("name", name), zap.Error(err))
		return
	}
	logger.Info("seeded agent from treasury",
		zap.Int("agentId", agentID), zap.String("name", name),
		zap.Float64("sol", models.DemoSeedSol), zap.String("signature", result.Signature),
	)
}

func loadAgentConfigs(dir string) ([]*models.AgentConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var configs []*models.AgentConfig
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		cfg, err := agentconfig.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func printStatesTable(rt *runtime.Runtime) {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Agent", "Status", "Balance", "Tick"})
	for _, s := range rt.GetStates() {
		tw.Append([]string{s.Name, string(s.Status), fmt.Sprintf("%.4f", s.Balance), fmt.Sprintf("%d", s.TickCount)})
	}
	tw.Render()
}
