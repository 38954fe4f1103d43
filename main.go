package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"promptarena/config"
	"promptarena/database"
	"promptarena/logging"
	"promptarena/signalhandler"
)

var (
	configPath string
	dbPath     string
	logPath    string
	debugMode  bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "promptarena",
	Short: "Prompt games scored by an image similarity engine",
	Long: `promptarena compares images with a weighted blend of pixel, structural,
histogram, edge and feature metrics, and runs the prompt-to-image matching
game and the keyword attack/defense game on top of it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("database") {
			cfg.Database.Path = dbPath
		}
		if cmd.Flags().Changed("logfile") {
			cfg.Logging.File = logPath
		}
		if debugMode {
			cfg.Logging.Debug = true
		}
		if err := logging.SetupLogger(cfg.Logging.File, cfg.Logging.Debug); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to setup logging: %v\n", err)
		} else if cfg.Logging.File != "" && cfg.Logging.Debug {
			fmt.Fprintf(os.Stderr, "Debug mode enabled. Logging to: %s\n", cfg.Logging.File)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "database", "", "Path to the attempt database")
	rootCmd.PersistentFlags().StringVar(&logPath, "logfile", "", "Write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(compareCmd, detailCmd, rankCmd, matchCmd, defendCmd, statsCmd, serveCmd)
}

// openDatabase initializes the attempt log with a short retry, since another
// process may hold the file briefly
func openDatabase() (*sql.DB, error) {
	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(cfg.Database.Path)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			logging.LogWarning("Error initializing database (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, fmt.Errorf("initializing database after %d attempts: %w", maxRetries, err)
}

func main() {
	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	ctx, cancel := signalhandler.SetupHandler(context.Background())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
