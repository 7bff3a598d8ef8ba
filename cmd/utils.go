package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"runtime/trace"
	"time"

	"github.com/encodeous/dronet/core"
	"github.com/encodeous/dronet/sim"
	"github.com/encodeous/dronet/state"
	"github.com/spf13/cobra"

	_ "github.com/encodeous/dronet/perf"
)

const DefaultConfigPath = "network.yaml"

func loggerFor(cmd *cobra.Command, cfg *state.NetworkCfg) (*slog.Logger, error) {
	level := slog.LevelInfo
	if ok, _ := cmd.Flags().GetBool("verbose"); ok {
		level = slog.LevelDebug
	}
	logPath := cfg.LogPath
	if p, _ := cmd.Flags().GetString("log-path"); p != "" {
		logPath = p
	}
	return core.NewLogger("dronet", level, logPath)
}

// startNetwork loads the config, starts every node and runs an initial discovery round
func startNetwork(cmd *cobra.Command) (*sim.Network, *slog.Logger, error) {
	cfg, err := state.LoadNetworkConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := loggerFor(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	n, err := sim.NewNetwork(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := n.Start(); err != nil {
		_ = n.Stop()
		return nil, nil, err
	}
	n.DiscoverAll()
	return n, log, nil
}

// setupDebugging serves expvar metrics and optionally records a runtime trace until ctx ends
func setupDebugging(ctx context.Context, log *slog.Logger, addr, tracePath string) {
	if addr != "" {
		srv := &http.Server{Addr: addr}
		go func() {
			log.Info("serving metrics", "addr", "http://"+addr+"/debug/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}
	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			log.Error("failed to create trace file", "err", err)
			return
		}
		if err := trace.Start(f); err != nil {
			log.Error("failed to start trace", "err", err)
			_ = f.Close()
			return
		}
		log.Info("started tracing", "path", tracePath)
		go func() {
			<-ctx.Done()
			trace.Stop()
			_ = f.Close()
		}()
	}
}
