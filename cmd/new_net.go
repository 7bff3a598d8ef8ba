package cmd

import (
	"fmt"

	"github.com/encodeous/dronet/state"
	"github.com/spf13/cobra"
)

// netCmd represents the new command
var netCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a sample network topology config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := state.SampleNetwork()
		path := configPath

		if ok, _ := cmd.Flags().GetBool("yes"); !ok {
			pdr := promptPdr("Drop rate of every drone", cfg.Drones[0].Pdr)
			for i := range cfg.Drones {
				cfg.Drones[i].Pdr = pdr
			}
			path = safeSaveFile(path, "Network Config")
		}
		if err := state.NetworkConfigValidator(cfg); err != nil {
			return err
		}
		if err := state.SaveNetworkConfig(path, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s with %d drones, %d clients and %d servers\n", path, len(cfg.Drones), len(cfg.Clients), len(cfg.Servers))
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(netCmd)
	netCmd.Flags().BoolP("yes", "y", false, "Write the sample without prompting")
}
