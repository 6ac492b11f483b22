package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fleet-tracker/internal/archive"
	"fleet-tracker/internal/config"
	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/hub"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/pipeline"
	"fleet-tracker/internal/status"
	"fleet-tracker/internal/store"
	"fleet-tracker/internal/telemetry"
	transporthttp "fleet-tracker/internal/transport/http"
)

func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the tracker server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotenv()
			cfg := config.Load()
			log := logger.New("tracker")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				ps  store.PathStore
				rds *store.RedisStore
				err error
			)
			switch cfg.StoreBackend {
			case "memory":
				ps = store.NewMemoryStore(cfg.PathCap)
				log.Info("using in-memory path store")
			default:
				rds, err = store.NewRedisStore(ctx, cfg)
				if err != nil {
					return fmt.Errorf("redis store: %w", err)
				}
				ps = rds
				log.Info("using redis path store at %s", cfg.RedisAddr)
			}
			defer ps.Close()

			var archiveDB *store.ArchiveDB
			if cfg.ArchiveEnabled {
				archiveDB, err = store.NewArchiveDB(ctx, cfg)
				if err != nil {
					return fmt.Errorf("archive db: %w", err)
				}
				defer archiveDB.Close()
				log.Info("durable archive enabled (%s:%s/%s)", cfg.DBHost, cfg.DBPort, cfg.DBName)
			}

			classifier := status.NewClassifier(cfg.OfflineThreshold(), cfg.IdleThreshold(), cfg.MoveThresholdM)
			h := hub.NewHub(log.Named("hub"), cfg.BroadcastBuffer, cfg.ClientSendBuffer)
			archiver := archive.NewArchiver(ps, archiveDB, log.Named("archive"))
			broadcaster := pipeline.NewBroadcaster(ps, classifier, archiver, h, cfg.EvalInterval(), log.Named("broadcast"))
			dispatcher := pipeline.NewDispatcher(cfg.HistoryChannelSize)
			normalizer := telemetry.NewNormalizer(cfg.IngestTopic)

			// New observers are seeded from the store, not from the last
			// broadcast, so state persisted across a restart is visible
			// before the first evaluation.
			h.SetState(func() map[string]domain.AssetState {
				world, err := broadcaster.World(ctx)
				if err != nil {
					log.Error("initial state read failed: %v", err)
					return nil
				}
				return world
			})

			go h.Run(ctx)
			go broadcaster.Run(ctx)

			if archiveDB != nil {
				writer := pipeline.NewHistoryWriter(
					dispatcher.HistoryChan, archiveDB,
					cfg.HistoryBatchSize, cfg.HistoryFlushIntervalMS,
					log.Named("history"),
				)
				go writer.Run(ctx)
			}

			var src pipeline.Source
			if rds != nil {
				src = pipeline.NewRedisSource(ctx, rds.Client(), cfg.IngestPattern, log.Named("source"))
				defer src.Close()
			} else {
				// No broker in memory mode; reports arrive via manual-add.
				src = pipeline.NewChanSource(1)
				log.Warning("no inbound subscription in memory mode")
			}

			ingestor := pipeline.NewIngestor(src, normalizer, ps, dispatcher, broadcaster, log.Named("ingest"))
			for i := 0; i < cfg.IngestWorkers; i++ {
				go ingestor.Run(ctx)
			}

			api := transporthttp.NewServer(ps, ingestor, broadcaster, classifier, h, log.Named("http"))
			srv := &http.Server{
				Addr:              ":" + cfg.HTTPPort,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening on %s (topic %s)", srv.Addr, cfg.IngestTopic)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
