// Rmtemplates manages custom page templates on a reMarkable tablet.
//
// It keeps a local view of the templates installed on the device, lets you
// queue new template files and deletions, and pushes them in a single sync
// over SSH. A backup of the device's template folder can be taken at any
// time, and a local HTTP server exposes the same operations to other tools.
//
// Usage:
//
//	rmtemplates [command] [flags]
//
// See 'rmtemplates --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rmtemplates/internal/logging"
	"github.com/muurk/rmtemplates/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rmtemplates",
	Short: "reMarkable template manager",
	Long: `A utility for installing and removing custom page templates on a
reMarkable tablet.

Templates are queued locally and applied to the device in one sync. The
device is reached over SSH, either through the USB network (10.11.99.1)
or on the local network via mDNS discovery.

Set RMTEMPLATES_LOG_LEVEL=debug to see what is sent to the device.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.InitializeFromEnv(); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("rmtemplates %s\n", version.Full())
		fmt.Printf("  %s %s\n", info.GoVersion, info.Platform)
	},
}
