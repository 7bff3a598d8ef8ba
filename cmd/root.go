package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath = DefaultConfigPath

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dronet",
	Short: "Dronet relay network simulator",
	Long: `Dronet runs clients and servers over a network of unreliable relays.
Endpoints discover the topology by flooding, source route every packet and recover from loss with per fragment acknowledgements.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Dronet",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "dn",
		Title: "Dronet Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "network topology config")
}
