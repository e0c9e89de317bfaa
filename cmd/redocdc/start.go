package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redocdc/redocdc/internal/alert"
	"github.com/redocdc/redocdc/internal/builder"
	"github.com/redocdc/redocdc/internal/config"
	"github.com/redocdc/redocdc/internal/consensus"
	"github.com/redocdc/redocdc/internal/engine"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/ringbuf"
	"github.com/redocdc/redocdc/internal/writer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type metadataWriter interface {
	SetMetadata(key, value string) error
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Decode the configured redo stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
			return err
		}
		log := logger.WithComponent("main")

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		alerts := alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		var checkpoints engine.Checkpointer = store
		var meta metadataWriter = store
		var node *consensus.Node

		if cfg.Clustered() {
			log.Info("Starting Raft consensus...")
			node, err = consensus.NewNode(&consensus.NodeConfig{
				NodeID:    cfg.Node.ID,
				BindAddr:  cfg.Node.BindAddr,
				DataDir:   cfg.Storage.DataDir,
				Bootstrap: cfg.Node.Bootstrap,
				PeerAddrs: cfg.Node.PeerAddrs,
			}, store)
			if err != nil {
				return fmt.Errorf("failed to create raft node: %w", err)
			}
			if err := node.Start(ctx); err != nil {
				return fmt.Errorf("failed to start raft node: %w", err)
			}
			defer node.Stop()

			joinCtx, joinCancel := context.WithTimeout(ctx, cfg.Node.JoinTimeoutDuration())
			leader, err := node.WaitForLeader(joinCtx)
			joinCancel()
			if err != nil {
				return fmt.Errorf("failed to find raft leader: %w", err)
			}
			log.WithField("leader", leader).Info("Raft node started")

			if !node.IsLeader() {
				log.Info("Standing by as follower")
				if !awaitLeadership(node, sigCh) {
					log.Info("redocdc node stopped")
					return nil
				}
				log.Info("Acquired leadership, taking over decoding")
			}
			checkpoints = node
			meta = node
		} else {
			log.Info("Running in single-node mode (no Raft)")
		}

		// TODO: replicate schema snapshots through the raft log so a follower
		// that takes over resumes with the leader's catalog.
		cat, resume, err := loadCatalog(store)
		if err != nil {
			return err
		}
		if resume != nil {
			log.WithFields(logrus.Fields{
				"scn":        resume.SCN,
				"oldest_scn": resume.OldestSCN,
				"schema_scn": cat.SCN,
			}).Info("Resuming from checkpoint")
		}

		buf := ringbuf.New(cfg.Output.BufferSize)
		buf.WatchContext(ctx)
		out := builder.NewJSONBuilder(buf, builder.JSONOptions{
			PerOperation:   cfg.Output.PerOperation,
			ShowSystem:     cfg.Output.ShowSystem,
			HideCheckpoint: cfg.Output.HideCheckpoint,
		})

		target, err := openTarget(ctx, cfg)
		if err != nil {
			return err
		}
		w := writer.New(cfg.Output.Writer, buf, target, writer.Options{Alerts: alerts})

		src, err := os.Open(cfg.Source.Path)
		if err != nil {
			target.Close(ctx)
			return fmt.Errorf("failed to open redo source: %w", err)
		}
		defer src.Close()

		fields := redo.LittleEndian
		if cfg.Source.ByteOrder == "big" {
			fields = redo.BigEndian
		}

		eng := engine.New(cat, store, out, engine.Options{
			Fields:             fields,
			MaxTransactions:    cfg.Engine.MaxTransactions,
			Owners:             cfg.Engine.Owners,
			ContinueOnError:    cfg.Source.ContinueOnError,
			CheckpointInterval: cfg.Source.CheckpointInterval,
			Resume:             resume,
			Checkpoints:        checkpoints,
			Alerts:             alerts,
		})

		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start writer: %w", err)
		}
		if err := eng.Start(ctx, src); err != nil {
			w.Stop()
			return fmt.Errorf("failed to start engine: %w", err)
		}
		log.WithField("source", cfg.Source.Path).Info("redocdc is running. Press Ctrl+C to stop.")

		done := make(chan error, 1)
		go func() { done <- eng.Wait() }()

		var runErr error
		select {
		case runErr = <-done:
		case <-sigCh:
			log.Info("Shutting down...")
			go eng.Stop()
			select {
			case runErr = <-done:
			case <-time.After(5 * time.Second):
				log.Warn("Engine did not stop in time, cancelling")
				cancel()
				runErr = <-done
			}
		}

		buf.Close()
		if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Writer failed")
			if runErr == nil {
				runErr = err
			}
		}
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}

		if removed, err := store.PruneSchemas(cfg.Storage.KeepSchemas); err != nil {
			log.WithError(err).Warn("Failed to prune schema snapshots")
		} else if removed > 0 {
			log.WithField("removed", removed).Info("Pruned schema snapshots")
		}
		if err := meta.SetMetadata("source_path", cfg.Source.Path); err != nil {
			log.WithError(err).Warn("Failed to record source path")
		}

		if node != nil {
			if err := node.TransferLeadership(); err != nil {
				log.WithError(err).Warn("Failed to hand over leadership")
			}
		}

		stats := eng.Stats()
		log.WithFields(logrus.Fields{
			"records":  stats.Records,
			"skipped":  stats.Skipped,
			"ops":      stats.Operations,
			"messages": out.Messages(),
			"written":  w.Written(),
			"last_scn": stats.LastSCN,
		}).Info("redocdc node stopped")
		return nil
	},
}

// awaitLeadership polls until this node leads the cluster. It returns false
// when a signal arrives first.
func awaitLeadership(node *consensus.Node, sigCh <-chan os.Signal) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return false
		case <-ticker.C:
			if node.IsLeader() {
				return true
			}
		}
	}
}

func openTarget(ctx context.Context, cfg *config.Config) (writer.Target, error) {
	switch cfg.Output.Writer {
	case "postgres":
		pg := cfg.Output.Postgres
		t, err := writer.ConnectPostgres(ctx, pg.ConnectionString(), pg.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return t, nil
	default:
		t, err := writer.OpenStream(cfg.Output.StreamPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open output stream: %w", err)
		}
		return t, nil
	}
}
