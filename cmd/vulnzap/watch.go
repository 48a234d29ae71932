package main

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/logger"
)

var (
	watchSession     string
	watchTimeout     time.Duration
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Run an incremental scan session over a directory",
	Long: `Watch a directory and send every saved source file to the backend for an
incremental scan. The session ends after --timeout without changes or on
Ctrl-C; the final session results are printed either way.

Log level changes in the config file are applied while the session runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun(args[0])
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSession, "session", "", "Session id (default: a new ULID)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "Idle timeout between 10s and 10m (default watcher_config.default_timeout_secs)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(watchCmd)
}

func watchRun(dir string) error {
	sessionID := watchSession
	if sessionID == "" {
		sessionID = newSessionID()
	}

	cfg := cfgMgr.GetConfig()
	applyFlagOverrides(cfg)
	timeout := watchTimeout
	if timeout == 0 {
		timeout = cfg.WatcherConfig.DefaultTimeout()
	}
	if timeout < config.MinWatcherTimeout || timeout > config.MaxWatcherTimeout {
		return common.NewValidationError("timeout", timeout.String(), "must be between 10s and 10m")
	}

	sessionLogger, err := logger.NewWithSession(cfg.LogConfig, sessionID)
	if err != nil {
		return err
	}
	// The level is driven globally so config reloads can change it
	levels := logger.NewLogLevelParser()
	if level, err := levels.ParseLevel(cfg.LogConfig.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	appLogger = sessionLogger.Level(zerolog.TraceLevel)
	cfgMgr.OnReload(func(newCfg *config.GlobalConfig) {
		if level, err := levels.ParseLevel(newCfg.LogConfig.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
			appLogger.Info().Str("level", level.String()).Msg("Log level reloaded")
		}
	})

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signalContext()
	defer stop()
	cfgMgr.StartHotReload(ctx)

	if watchMetricsAddr != "" {
		if m := client.Metrics(); m != nil {
			go func() {
				if err := m.Serve(ctx, watchMetricsAddr, appLogger); err != nil {
					appLogger.Error().Err(err).Msg("Metrics server failed")
				}
			}()
		} else {
			ui.Warning("metrics are disabled in the configuration, --metrics-addr ignored")
		}
	}

	unsubscribe := client.Subscribe(ui.Event)
	defer unsubscribe()

	if !client.SecurityAssistant(dir, sessionID, timeout) {
		return common.NewValidationError("dir", dir, "could not start a watch session (missing directory or session already active)")
	}
	ui.Success("Watching %s as session %s (idle timeout %s)", dir, sessionID, timeout)

	select {
	case <-client.SessionDone(sessionID):
	case <-ctx.Done():
		ui.Info("Interrupted, stopping session %s", sessionID)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	results, err := client.StopSecurityAssistant(stopCtx, sessionID)
	if err != nil {
		return err
	}
	return ui.JSON(results)
}

func newSessionID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String())
}
