// Command taskctl is the operator CLI for submitting, listing, inspecting,
// and cancelling tasks, either against a running gateway over HTTP or
// directly against the task store for offline inspection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Operator CLI for the orchestration engine",
	Long: `taskctl submits and inspects tasks run by the orchestration engine.

By default it talks to a gateway over HTTP (--gateway-url, --api-key). Pass
--store <path> instead to read the SQLite task store directly, bypassing the
gateway entirely — useful for inspecting a worker's data directory when the
gateway isn't running. Direct-store mode can create rows but cannot notify a
running worker process's in-memory queue; a submitted task is only picked up
once that worker restarts and requeues non-terminal tasks.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKCTL")
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("gateway-url", "http://localhost:8374", "gateway base URL")
	rootCmd.PersistentFlags().String("api-key", "", "gateway API key (or set TASKCTL_API_KEY)")
	rootCmd.PersistentFlags().String("store", "", "path to a task store SQLite file, for direct-store mode")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON instead of a table")
	_ = viper.BindPFlag("gateway-url", rootCmd.PersistentFlags().Lookup("gateway-url"))
	_ = viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(gatewayCmd())
}
