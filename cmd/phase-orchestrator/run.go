package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apiserver "github.com/corpusforge/phase-orchestrator/internal/api_server"
	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/config"
	"github.com/corpusforge/phase-orchestrator/internal/dispatcher"
	"github.com/corpusforge/phase-orchestrator/internal/events"
	"github.com/corpusforge/phase-orchestrator/internal/jobs"
	"github.com/corpusforge/phase-orchestrator/internal/store"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the phase orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer teardown()

		zap.S().Info("Starting phase orchestrator")
		defer zap.S().Info("Phase orchestrator stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		profiles, err := config.LoadPhases(cfg.Service.PhasesFile)
		if err != nil {
			return fmt.Errorf("loading phase profiles: %w", err)
		}

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}
		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(ctx); err != nil {
			return fmt.Errorf("running initial migration: %w", err)
		}

		chs, closeChannels, err := newChannelStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing channel store: %w", err)
		}
		defer closeChannels()
		zap.S().Infow("channel store ready", "type", chs.Type())

		d := dispatcher.NewDispatcher(newSpawner(ctx, cfg), dispatcherOptions(cfg, profiles)...)

		// the sequencer starts phases through the manager built below
		var manager *jobs.Manager
		sequencerOpts := []events.SequencerOption{}
		if cfg.Orchestrator.AutoAdvance {
			starter := events.NextPhaseStarterFunc(func(ctx context.Context, courseID string, phase int, totalUnits int) error {
				return manager.StartPhase(ctx, courseID, phase, totalUnits)
			})
			sequencerOpts = append(sequencerOpts, events.WithAutoAdvance(starter, nextPhase(profiles)))
		}
		sequencer := events.NewPhaseSequencer(s.Phase(), sequencerOpts...)

		writer, err := newEventWriter(cfg)
		if err != nil {
			return fmt.Errorf("initializing event writer: %w", err)
		}
		producer := events.NewEventProducer(events.NewMultiWriter(writer, sequencer), events.WithOutputTopic(cfg.Events.Topic))

		opts := jobs.Options{
			PollInterval:   cfg.Orchestrator.PollInterval,
			WatcherTimeout: cfg.Orchestrator.WatcherTimeout,
			MaxRetries:     cfg.Orchestrator.MaxRetries,
			RetryDelay:     cfg.Orchestrator.RetryDelay,
			ConflictWindow: cfg.Orchestrator.ConflictWindow,
			MaxCycles:      cfg.Orchestrator.MaxCycles,
		}
		manager = jobs.NewManager(jobs.NewRegistry(), s, chs, d, producer, opts)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return fmt.Errorf("creating listener: %w", err)
			}
			return apiserver.New(cfg, manager, listener).Run(gctx)
		})
		g.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return fmt.Errorf("creating metrics listener: %w", err)
			}
			metricsServer, err := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, s)
			if err != nil {
				return err
			}
			return metricsServer.Run(gctx)
		})

		runErr := g.Wait()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			zap.S().Warnw("jobs did not stop in time", "error", err)
		}
		if err := producer.Close(); err != nil {
			zap.S().Warnw("failed to flush events", "error", err)
		}
		return runErr
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}

func newChannelStore(ctx context.Context, cfg *config.Config) (channels.Store, func(), error) {
	noop := func() {}
	switch cfg.Storage.Type {
	case "memory":
		return channels.NewMemoryStore(), noop, nil
	case "minio", "s3":
		m, err := channels.NewMinioStore(
			channels.WithEndpoint(cfg.Storage.Minio.Endpoint),
			channels.WithBucket(cfg.Storage.Minio.Bucket),
			channels.WithAccessKey(cfg.Storage.Minio.AccessKey),
			channels.WithSecretKey(cfg.Storage.Minio.SecretKey),
			channels.WithSSL(cfg.Storage.Minio.UseSSL),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return m, noop, nil
	case "redis":
		r, err := channels.NewRedisStore(ctx, &goredis.Options{
			Addr:     cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func newSpawner(ctx context.Context, cfg *config.Config) dispatcher.Spawner {
	if cfg.Orchestrator.SpawnerURL == "" {
		zap.S().Warn("no worker runner configured, tasks are only logged")
		return dispatcher.LogSpawner{}
	}
	spawner := dispatcher.NewHTTPSpawner(cfg.Orchestrator.SpawnerURL, cfg.Orchestrator.SpawnerTimeout)
	if err := spawner.HealthCheck(ctx); err != nil {
		zap.S().Warnw("worker runner is not healthy yet", "url", cfg.Orchestrator.SpawnerURL, "error", err)
	}
	return spawner
}

func dispatcherOptions(cfg *config.Config, profiles map[int]config.PhaseProfile) []dispatcher.Option {
	opts := []dispatcher.Option{dispatcher.WithStagger(cfg.Orchestrator.StaggerDelay)}
	for phase, p := range profiles {
		if p.Stagger != "" {
			opts = append(opts, dispatcher.WithPhaseStagger(phase, p.StaggerDelay))
		}
	}
	return opts
}

// nextPhase follows the profile's next phase, defaulting to phase+1.
func nextPhase(profiles map[int]config.PhaseProfile) func(int) (int, bool) {
	return func(phase int) (int, bool) {
		if p, ok := profiles[phase]; ok && p.NextPhase > 0 {
			return p.NextPhase, true
		}
		if len(profiles) > 0 {
			_, ok := profiles[phase+1]
			return phase + 1, ok
		}
		return phase + 1, true
	}
}

// newEventWriter builds the writers named in a comma separated list.
func newEventWriter(cfg *config.Config) (events.Writer, error) {
	var writers []events.Writer
	for _, name := range strings.Split(cfg.Events.Writer, ",") {
		switch strings.TrimSpace(name) {
		case "", "stdout":
			writers = append(writers, &events.StdoutWriter{})
		case "nats":
			w, err := events.NewNATSWriter(cfg.Events.NatsURL)
			if err != nil {
				return nil, err
			}
			writers = append(writers, w)
		default:
			return nil, fmt.Errorf("unknown events writer %q", name)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return events.NewMultiWriter(writers...), nil
}
