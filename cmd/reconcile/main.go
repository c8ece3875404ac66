// Command reconcile rebuilds the unassigned list of every owner once, or of
// the owners named on the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quickping/internal/config"
	"quickping/internal/database"
	"quickping/internal/reconcile"
	"quickping/internal/store"
	"quickping/internal/whatsapp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1:]); err != nil {
		logger.Fatal("reconciliation failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, owners []string) error {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	s := store.New(db, store.Options{
		Phones:         whatsapp.NewClient(cfg),
		SystemListName: cfg.SystemListName,
		Logger:         logger,
	})
	defer s.Close()

	if len(owners) == 0 {
		owners, err = s.Owners(ctx)
		if err != nil {
			return fmt.Errorf("list owners: %w", err)
		}
	}
	logger.Info("reconciling", zap.Int("owners", len(owners)))

	engine := reconcile.New(s, nil, nil, logger)

	g, gctx := errgroup.WithContext(ctx)
	// sqlite allows a single writer.
	if cfg.DBDriver == "sqlite" {
		g.SetLimit(1)
	} else {
		g.SetLimit(8)
	}
	for _, owner := range owners {
		g.Go(func() error {
			res, err := engine.Reconcile(gctx, owner)
			if err != nil {
				return fmt.Errorf("owner %s: %w", owner, err)
			}
			logger.Info("owner reconciled",
				zap.String("owner", owner),
				zap.Int("created", res.Created),
				zap.Int("updated", res.Updated),
				zap.Int("deleted", res.Deleted),
				zap.Int("pruned", res.Pruned),
				zap.Int("unassigned", res.Unassigned))
			return nil
		})
	}
	return g.Wait()
}
