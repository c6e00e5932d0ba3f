// Command citadeld runs the cluster coordinator: a Master actor backed
// by an in-memory Registry and a DRF Allocator. It has no containerizer,
// no gRPC API, and no persistent registrar of its own — those are the
// boundaries a deployment wires in around this binary.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/citadel/pkg/actor"
	"github.com/cuemby/citadel/pkg/allocator"
	"github.com/cuemby/citadel/pkg/config"
	"github.com/cuemby/citadel/pkg/log"
	"github.com/cuemby/citadel/pkg/master"
	"github.com/cuemby/citadel/pkg/metrics"
	"github.com/cuemby/citadel/pkg/registry"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "citadeld",
	Short:   "Citadel - a two-level cluster resource manager",
	Long:    "Citadel splits resource offers from task placement: it runs a DRF allocator over admitted slaves and hands the result to registered frameworks, which decide what to launch.",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("citadeld version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	runCmd.Flags().String("config", "", "Path to a citadel.yaml config file (defaults applied when omitted)")
	runCmd.Flags().String("pid-id", "master", "This master's actor id, used in its PID and in logs")
	runCmd.Flags().String("host", "127.0.0.1", "Host this master's PID reports itself at")
	runCmd.Flags().Int("port", 5050, "Port this master's PID reports itself at")
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the master and allocator",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		pidID, _ := cmd.Flags().GetString("pid-id")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")

		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
		}

		self := actor.PID{ID: pidID, Host: host, Port: port}

		reg := registry.New()
		coll := metrics.NewCollector(reg)
		coll.Start()
		defer coll.Stop()

		m := master.New(master.Config{PID: self, Master: cfg.Master}, reg, nil)
		alloc := allocator.New(actor.PID{ID: pidID + "-allocator", Host: host, Port: port}, cfg.Allocator, m)
		m.SetAllocator(alloc)
		master.Bridge(reg, alloc)

		go alloc.Run(cfg.Allocator.AllocationInterval)
		go m.Run()

		fmt.Printf("citadeld running as %s\n", self)
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		m.Stop()
		alloc.Stop()
		time.Sleep(50 * time.Millisecond)
		fmt.Println("shutdown complete")
		return nil
	},
}
