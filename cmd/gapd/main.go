package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gap-kernel/gap/internal/cga"
	"github.com/gap-kernel/gap/internal/config"
	"github.com/gap-kernel/gap/internal/executor"
	"github.com/gap-kernel/gap/internal/governance"
	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/gap-kernel/gap/internal/learning"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/reconciler"
	"github.com/gap-kernel/gap/internal/store/litelineage"
	"github.com/gap-kernel/gap/internal/store/pglineage"
	"github.com/gap-kernel/gap/internal/strategy"
	"github.com/gap-kernel/gap/internal/telemetry"
	"github.com/gap-kernel/gap/internal/worldmodel"
)

// kernelVersion is stamped onto the telemetry resource.
const kernelVersion = "0.1.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for both main() and CLI tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServer(stdout, stderr)
		return 0
	}

	switch args[1] {
	case "server", "serve":
		runServer(stdout, stderr)
		return 0
	case "doctor":
		return runDoctor(stdout, stderr)
	case "lineage":
		return runLineageCmd(args[2:], stdout, stderr)
	case "reconcile":
		return runReconcileOnce(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "gap kernel — models propose, the kernel disposes.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: gapd <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  server       run the autonomy kernel daemon (default)")
	fmt.Fprintln(w, "  reconcile    run a single reconciler tick against the live lineage store and exit")
	fmt.Fprintln(w, "  lineage      lineage ledger utilities: verify | show <limit>")
	fmt.Fprintln(w, "  doctor       print the effective configuration and check the strategy plugin path (does not contact the datastore)")
	fmt.Fprintln(w, "  help         show this help")
}

// components is the fully wired in-process object graph the daemon runs.
type components struct {
	cfg        *config.Config
	world      *worldmodel.Store
	governance *governance.Evaluator
	strategyGen strategy.Generator
	executor   *executor.Dispatcher
	orchestra  *cga.Orchestrator
	lineage    ledger.Store
	learning   *learning.Engine
	reconciler *reconciler.Loop
	telemetry  *telemetry.Provider
	closeFn    func() error
}

func wireComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	tel, err := telemetry.New(kernelVersion)
	if err != nil {
		logger.Warn("telemetry provider init failed, proceeding uninstrumented", "error", err)
		tel = telemetry.Noop()
	}

	world := worldmodel.New()
	gov := governance.New()
	gov.Telemetry = tel
	exec := executor.New(world)
	registerDefaultHandlers(exec, logger)

	learn := learning.New()

	ruleLadder := strategy.NewRuleLadder()
	ruleLadder.Advisor = learn
	var gen strategy.Generator = ruleLadder
	if cfg.StrategyWASMPath != "" {
		wasmGen, err := strategy.LoadWASMGenerator(ctx, cfg.StrategyWASMPath)
		if err != nil {
			logger.Warn("could not load strategy plugin, falling back to rule ladder", "path", cfg.StrategyWASMPath, "error", err)
		} else {
			gen = wasmGen
		}
	}

	orch := cga.New(gen, gov, exec)
	orch.MaxAttempts = cfg.MaxRetryBudget
	orch.Telemetry = tel

	var lineage ledger.Store
	var closeFn func() error
	if cfg.LiteMode() {
		path := os.Getenv("LITE_DB_PATH")
		if path == "" {
			path = "gap-lineage.db"
		}
		store, err := litelineage.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open lite lineage store: %w", err)
		}
		lineage = store
		closeFn = store.Close
		logger.Info("lineage store: lite mode (sqlite)", "path", path)
	} else {
		store, err := pglineage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres lineage store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init postgres lineage schema: %w", err)
		}
		lineage = store
		logger.Info("lineage store: postgres", "database_url_configured", true)
	}

	recCfg := reconciler.DefaultConfig()
	if cfg.HeartbeatSeconds > 0 {
		recCfg.HeartbeatInterval = time.Duration(cfg.HeartbeatSeconds) * time.Second
	}
	if cfg.CooldownSeconds > 0 {
		recCfg.CooldownDuration = time.Duration(cfg.CooldownSeconds) * time.Second
	}
	if cfg.CircuitBreakerN > 0 {
		recCfg.CircuitBreakerThreshold = cfg.CircuitBreakerN
	}
	rec := reconciler.New(world, orch, lineage, learn, recCfg)
	rec.Telemetry = tel

	if cfg.LedgerSigningSeed != "" {
		rec.SetKeyring(ledger.NewKeyringFromSeed([]byte(cfg.LedgerSigningSeed)))
	} else {
		logger.Info("no LEDGER_SIGNING_SEED configured, escalation resolutions will not be countersigned")
	}

	return &components{
		cfg: cfg, world: world, governance: gov, strategyGen: gen, executor: exec,
		orchestra: orch, lineage: lineage, learning: learn, reconciler: rec, telemetry: tel, closeFn: closeFn,
	}, nil
}

// registerDefaultHandlers wires the baseline action types the rule ladder
// and supplemented strategies emit. Every handler here only logs; a real
// deployment replaces these with handlers that call an actual CRM/mailer.
func registerDefaultHandlers(exec *executor.Dispatcher, logger *slog.Logger) {
	log := func(actionType string) executor.ActionHandler {
		return func(ctx context.Context, action model.PlannedAction) error {
			logger.Info("executing action", "action_type", actionType, "target", action.Target)
			return nil
		}
	}
	for _, actionType := range []string{"send_email", "send_sms", "query_crm", "route_to_human", "automated_outreach", "direct_call", "update_record"} {
		exec.Register(actionType, log(actionType))
	}
}

func runServer(stdout, stderr io.Writer) {
	fmt.Fprintln(stdout, "gap kernel starting...")
	ctx := context.Background()
	logger := slog.Default()
	cfg := config.Load()

	comp, err := wireComponents(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("wiring failed: %v", err)
	}
	if comp.closeFn != nil {
		defer comp.closeFn()
	}
	defer comp.telemetry.Shutdown(context.Background())

	go comp.reconciler.Run(ctx)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	go func() {
		addr := ":" + cfg.Port
		logger.Info("health server listening", "addr", addr)
		if err := http.ListenAndServe(addr, healthMux); err != nil {
			logger.Error("health server exited", "error", err)
		}
	}()

	fmt.Fprintln(stdout, "gap kernel ready; press ctrl+c to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	comp.reconciler.Stop()
	fmt.Fprintln(stdout, "gap kernel shutting down")
}

func runDoctor(stdout, stderr io.Writer) int {
	cfg := config.Load()
	fmt.Fprintf(stdout, "lite_mode: %v\n", cfg.LiteMode())
	fmt.Fprintf(stdout, "heartbeat_interval_seconds: %d\n", cfg.HeartbeatSeconds)
	fmt.Fprintf(stdout, "max_retry_budget: %d\n", cfg.MaxRetryBudget)
	fmt.Fprintf(stdout, "cooldown_seconds: %d\n", cfg.CooldownSeconds)
	fmt.Fprintf(stdout, "circuit_breaker_threshold: %d\n", cfg.CircuitBreakerN)
	if cfg.StrategyWASMPath != "" {
		if _, err := os.Stat(cfg.StrategyWASMPath); err != nil {
			fmt.Fprintf(stderr, "strategy_wasm_path %q unreadable: %v\n", cfg.StrategyWASMPath, err)
			return 1
		}
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runReconcileOnce(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()
	comp, err := wireComponents(ctx, cfg, slog.Default())
	if err != nil {
		fmt.Fprintf(stderr, "wiring failed: %v\n", err)
		return 1
	}
	if comp.closeFn != nil {
		defer comp.closeFn()
	}
	comp.reconciler.ReconcileOnce(ctx)
	fmt.Fprintln(stdout, "reconciled one tick")
	return 0
}

func runLineageCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: gapd lineage <verify|show>")
		return 2
	}
	ctx := context.Background()
	cfg := config.Load()
	comp, err := wireComponents(ctx, cfg, slog.Default())
	if err != nil {
		fmt.Fprintf(stderr, "wiring failed: %v\n", err)
		return 1
	}
	if comp.closeFn != nil {
		defer comp.closeFn()
	}

	switch args[0] {
	case "verify":
		ok, err := comp.lineage.VerifyChainIntegrity(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "verify failed: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(stderr, "chain integrity check FAILED")
			return 1
		}
		fmt.Fprintln(stdout, "chain integrity OK")
		return 0
	case "show":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				fmt.Fprintf(stderr, "invalid limit: %s\n", args[1])
				return 2
			}
			limit = n
		}
		records, err := comp.lineage.Recent(ctx, limit)
		if err != nil {
			fmt.Fprintf(stderr, "show failed: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(records)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown lineage subcommand: %s\n", args[0])
		return 2
	}
}
