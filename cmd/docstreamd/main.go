// Command docstreamd runs a DocStream messaging-plane node.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MerrukTechnology/DocStream/internal/config"
	"github.com/MerrukTechnology/DocStream/internal/logging"
	"github.com/MerrukTechnology/DocStream/internal/pubsub"
	"github.com/spf13/cobra"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "docstreamd",
	Short: "DocStream messaging-plane node",
	Long: `docstreamd runs one node of the DocStream messaging plane: a data
node publishing to its peers, a router pushing to the relay cluster, or a
relay peer aggregating router traffic. The role is selected by
configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}

		cfg, err := config.Load(wd, debugFlag)
		if err != nil {
			return err
		}

		plane, err := pubsub.NewPlane(cfg)
		if err != nil {
			// the plane is disabled but the process stays up so the
			// rest of the node keeps serving
			logging.Error("PubSub unavailable", "error", err)
		}
		defer plane.Shutdown()

		logging.Info("docstreamd running", "instance", plane.InstanceID())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logging.Info("docstreamd shutting down")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
