package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/andresmejia3/facefolio/internal/config"
	"github.com/andresmejia3/facefolio/internal/embedder"
	"github.com/andresmejia3/facefolio/internal/scan"
	"github.com/andresmejia3/facefolio/internal/store"
	"github.com/andresmejia3/facefolio/internal/worker"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the sorting commands
type Options struct {
	InputPath     string
	RefDir        string
	OutputDir     string
	NumEngines    int
	Tolerance     float64
	KeepUnmatched bool
	CopyRefs      bool
	ZipPath       string
	RunID         string
	Padding       int
}

var (
	// Cfg is the resolved configuration (defaults, file, environment, global flags)
	Cfg *config.Config
	// DB is the run store shared by subcommands
	DB store.Store

	configPath string
	dbURL      string
	workDir    string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facefolio",
	Short:   "Sort photos into per-person folders by face",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()

		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			Cfg.Database.URL = dbURL
		}
		if workDir != "" {
			Cfg.WorkDir = workDir
		}
		if err := Cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = openStore(cmd.Context(), Cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	// Cobra skips PersistentPostRun when a command fails.
	closeStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func closeStore() {
	if DB != nil {
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		// and we still need to send the "Close" command to the DB.
		DB.Close(context.Background())
		DB = nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: DATABASE_URL, or the file store when unset)")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "Directory for runs, portraits and extracted archives (default: .facefolio)")
}

func runsDir(cfg *config.Config) string {
	return filepath.Join(cfg.WorkDir, "runs")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		s, err := store.NewPG(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return s, nil
	}
	s, err := store.NewFileStore(runsDir(cfg))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// engineFactory builds the configured face engine.
func engineFactory(cfg *config.Config) embedder.Factory {
	if cfg.Engine.Kind == "dlib" {
		return embedder.NewDlibFactory(cfg.Engine.ModelsDir)
	}
	return worker.NewFactory(worker.Config{
		Python:      cfg.Engine.Python,
		Script:      cfg.Engine.Script,
		Model:       cfg.Engine.Model,
		ReadTimeout: cfg.Engine.ReadTimeout,
	})
}

func newPool(cfg *config.Config, engines int) *scan.Pool {
	if engines < 1 {
		engines = cfg.Engine.Count
	}
	return &scan.Pool{Factory: engineFactory(cfg), Engines: engines}
}

// loadRun returns the run with the given ID, or the latest run when id is empty.
func loadRun(ctx context.Context, id string) (*store.Run, error) {
	if id == "" {
		return DB.LatestRun(ctx)
	}
	return DB.LoadRun(ctx, id)
}
