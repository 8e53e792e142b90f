// Command prioris-sync runs a one-shot migration between two JSON-seeded
// stores and prints the aggregated result. It exists to exercise the engine
// end to end from the command line; production callers embed the engine and
// supply their own adapters.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/N3z3d/prioris-sync/internal/config"
	"github.com/N3z3d/prioris-sync/internal/domain"
	"github.com/N3z3d/prioris-sync/internal/engine"
	"github.com/N3z3d/prioris-sync/internal/observability"
	"github.com/N3z3d/prioris-sync/internal/store/memory"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML configuration file")
		sourcePath = flag.String("source", "", "JSON seed file for the source (local) store")
		destPath   = flag.String("dest", "", "optional JSON seed file for the destination (remote) store")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *sourcePath == "" {
		fmt.Fprintln(os.Stderr, "usage: prioris-sync -source lists.json [-dest existing.json] [-config sync.yaml]")
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	if err := run(*configPath, *sourcePath, *destPath, logger); err != nil {
		logger.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg = zap.NewDevelopmentConfig()
	}
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(configPath, sourcePath, destPath string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	local, err := seedStore(sourcePath)
	if err != nil {
		return fmt.Errorf("seed source store: %w", err)
	}
	remote := memory.NewStore()
	if destPath != "" {
		remote, err = seedStore(destPath)
		if err != nil {
			return fmt.Errorf("seed destination store: %w", err)
		}
	}

	collector := observability.NewCollector("prioris")
	eng := engine.New(local, remote,
		engine.WithLogger(logger),
		engine.WithSink(collector),
		engine.WithTuning(cfg),
	)
	defer eng.Dispose(context.Background())

	result, err := eng.Migrate(ctx, cfg)
	if result != nil {
		printResult(result)
	}
	return err
}

// seedStore loads a JSON array of lists (items nested) into a fresh
// in-memory store.
func seedStore(path string) (*memory.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lists []*domain.List
	if err := json.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	s := memory.NewStore()
	ctx := context.Background()
	for _, l := range lists {
		items := l.Items
		l.Items = nil
		if err := s.SaveList(ctx, l); err != nil {
			return nil, err
		}
		for _, item := range items {
			item.ListID = l.ID
			if err := s.SaveItem(ctx, item); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func printResult(r *engine.Result) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", r)
		return
	}
	fmt.Println(string(out))
}
