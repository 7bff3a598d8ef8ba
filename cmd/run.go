package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulated network",
	Long:  `Builds every drone, client and server from the topology config, discovers the network and lets each client talk to each server. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, log, err := startNetwork(cmd)
		if err != nil {
			return err
		}
		defer n.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr, _ := cmd.Flags().GetString("debug-addr")
		tracePath, _ := cmd.Flags().GetString("trace")
		setupDebugging(ctx, log, addr, tracePath)

		settle, _ := cmd.Flags().GetDuration("settle")
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return nil
		}

		if ok, _ := cmd.Flags().GetBool("demo"); ok {
			dctx, cancel := context.WithTimeout(ctx, n.Cfg.Tunables.WithDefaults().RequestTimeout*4)
			for _, o := range n.Demo(dctx) {
				fmt.Println(o)
			}
			cancel()
		}

		if ok, _ := cmd.Flags().GetBool("inspect"); ok {
			interval, _ := cmd.Flags().GetDuration("inspect-interval")
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				fmt.Print(n.Inspect())
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return nil
				}
			}
		}
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	},
	GroupID: "dn",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().String("log-path", "", "Also write logs to this file")
	runCmd.Flags().Bool("demo", true, "Run the client/server demo exchange after discovery")
	runCmd.Flags().Bool("inspect", false, "Periodically print the state of every node")
	runCmd.Flags().Duration("inspect-interval", 5*time.Second, "How often --inspect prints")
	runCmd.Flags().Duration("settle", 500*time.Millisecond, "Time to let discovery converge before the demo")
	runCmd.Flags().String("debug-addr", "", "Serve /debug/metrics on this address")
	runCmd.Flags().String("trace", "", "Write a runtime trace to this file")
}
