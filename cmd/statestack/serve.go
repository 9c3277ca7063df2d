package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/statestack"
	"github.com/aretw0/statestack/internal/adapters/watch"
	"github.com/aretw0/statestack/internal/presentation/tui"
	stackhttp "github.com/aretw0/statestack/pkg/adapters/http"
	"github.com/aretw0/statestack/pkg/adapters/memory"
	"github.com/aretw0/statestack/pkg/adapters/redis"
	"github.com/aretw0/statestack/pkg/observability"
	"github.com/aretw0/statestack/pkg/ports"
	"github.com/aretw0/statestack/pkg/script"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve <scenario.yaml>",
	Short: "Tick a scenario in real time behind an HTTP API",
	Long: `Starts the world in server mode: agents are ticked on a wall-clock ticker and exposed
through a JSON API with per-agent SSE streams and Prometheus metrics.

With --redis, snapshots are published to Redis and a lease on the world name keeps a
second server from ticking the same world. With --watch, edits to the scenario file
rebuild the world.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		path := args[0]
		port, _ := cmd.Flags().GetString("port")
		rate, _ := cmd.Flags().GetFloat64("rate")
		redisAddr, _ := cmd.Flags().GetString("redis")
		redisPassword, _ := cmd.Flags().GetString("redis-password")
		redisDB, _ := cmd.Flags().GetInt("redis-db")
		snapshotTTL, _ := cmd.Flags().GetDuration("snapshot-ttl")
		leaseWait, _ := cmd.Flags().GetDuration("lease-wait")
		watchFile, _ := cmd.Flags().GetBool("watch")

		if tui.IsTerminal(cmd.OutOrStdout()) {
			tui.PrintBanner(cmd.OutOrStdout(), statestack.Version)
		}

		var store ports.SnapshotStore = memory.NewStore()
		var locker ports.DistributedLocker = memory.NewLocker()
		if redisAddr != "" {
			rs := redis.New(redisAddr, redisPassword, redisDB, redis.WithTTL(snapshotTTL))
			defer rs.Close()
			store = rs
			locker = redis.NewLocker(rs.Client(), redis.DefaultPrefix)
		}

		lockCtx, cancel := context.WithTimeout(cmd.Context(), leaseWait)
		unlock, err := locker.Lock(lockCtx, "world:"+scenarioName(path), 0)
		cancel()
		if err != nil {
			return fmt.Errorf("world %q is served elsewhere: %w", scenarioName(path), err)
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				logger.Warn("failed to release world lease", "error", err)
			}
		}()

		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		streams := stackhttp.NewStreamManager(logger)
		opts := []statestack.Option{
			statestack.WithLifecycleHooks(observability.Chain(metrics.Hooks(), observability.LogHooks(logger))),
			statestack.WithSnapshotPublisher(ports.FanOut(store, streams)),
		}

		ctx, stopTicking := context.WithCancel(context.Background())
		defer stopTicking()

		s, world, err := startWorld(ctx, path, logger, opts...)
		if err != nil {
			return err
		}
		live := newLiveWorld(world)

		var reload <-chan string
		if watchFile {
			w, err := watch.New([]string{path})
			if err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			defer w.Close()
			reload = w.Events
			go func() {
				for err := range w.Errors {
					logger.Warn("watch error", "error", err)
				}
			}()
		}

		ticking := make(chan struct{})
		go func() {
			defer close(ticking)
			simulate(ctx, live, s, rate, reload, func() (*script.Scenario, *statestack.World, error) {
				return startWorld(ctx, path, logger, opts...)
			}, logger)
		}()

		srv := &http.Server{
			Addr: ":" + port,
			Handler: stackhttp.NewHandler(live,
				stackhttp.WithLogger(logger),
				stackhttp.WithStreams(streams),
			),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Fprintf(cmd.OutOrStdout(), "Starting statestack server on %s\n", srv.Addr)
			fmt.Fprintf(cmd.OutOrStdout(), "Simulating: %s (%d agents)\n", path, len(s.Agents))
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		var serveErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				serveErr = fmt.Errorf("server error: %w", err)
			}

		case sig := <-shutdown:
			fmt.Fprintf(cmd.OutOrStdout(), "\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(sctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Error killing server: %v\n", err)
				}
			}
		}

		stopTicking()
		<-ticking
		if err := live.Load().Unload(context.Background()); err != nil {
			logger.Warn("failed to unload world", "error", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "statestack server stopped")
		return serveErr
	},
}

// simulate ticks the live world until ctx is done. Scenario inputs are replayed on their
// frames; after the scenario's last frame the world keeps ticking with no scripted input.
// A value on reload rebuilds the world and restarts the frame count.
func simulate(ctx context.Context, live *liveWorld, s *script.Scenario, rate float64,
	reload <-chan string, rebuild func() (*script.Scenario, *statestack.World, error), logger *slog.Logger) {
	interval := s.DeltaTime()
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frame uint64
	for {
		select {
		case <-ctx.Done():
			return

		case file, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			next, world, err := rebuild()
			if err != nil {
				logger.Error("reload failed; keeping current world", "file", file, "error", err)
				continue
			}
			old := live.Swap(world)
			if err := old.Unload(ctx); err != nil {
				logger.Warn("failed to unload replaced world", "error", err)
			}
			s, frame = next, 0
			logger.Info("world reloaded", "file", file, "agents", len(world.Agents()))

		case <-ticker.C:
			frame++
			if err := s.Step(ctx, live.Load(), frame); err != nil {
				logger.Warn("tick reported errors", "frame", frame, "error", err)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Float64("rate", 0, "Wall-clock ticks per second (default: one tick per scenario delta)")
	serveCmd.Flags().String("redis", "", "Redis address for snapshots and the world lease")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().Duration("snapshot-ttl", time.Minute, "Expiry of snapshots published to Redis")
	serveCmd.Flags().Duration("lease-wait", 10*time.Second, "How long to wait for the world lease")
	serveCmd.Flags().Bool("watch", false, "Rebuild the world when the scenario file changes")
}
