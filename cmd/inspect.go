package cmd

import (
	"fmt"
	"time"

	"github.com/encodeous/dronet/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect [node]",
	Aliases: []string{"i"},
	Short:   "Discovers the network once and prints what the nodes learned",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _, err := startNetwork(cmd)
		if err != nil {
			return err
		}
		defer n.Stop()

		settle, _ := cmd.Flags().GetDuration("settle")
		time.Sleep(settle)

		if len(args) == 0 {
			fmt.Print(n.Inspect())
			return nil
		}
		id, err := state.ParseNodeId(args[0])
		if err != nil {
			return err
		}
		ep, ok := n.Endpoint(id)
		if !ok {
			return fmt.Errorf("%s is not an endpoint", id)
		}
		result, err := ep.Inspect()
		if err != nil {
			return err
		}
		fmt.Print(result)
		return nil
	},
	GroupID: "dn",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	inspectCmd.Flags().String("log-path", "", "Also write logs to this file")
	inspectCmd.Flags().Duration("settle", 500*time.Millisecond, "Time to let discovery converge")
}
