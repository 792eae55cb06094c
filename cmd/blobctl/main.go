package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"

	"github.com/tendant/blobtier/pkg/blobtier/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLIConfig holds the process-level settings. Storage and lifecycle settings
// are read by config.WithEnv under EnvPrefix.
type CLIConfig struct {
	EnvPrefix string `env:"BLOBTIER_ENV_PREFIX" env-default:"BLOBTIER_"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"warn"`
}

func main() {
	var cliConfig CLIConfig
	if err := cleanenv.ReadEnv(&cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cliConfig.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	app := &App{
		Out: os.Stdout,
		Open: func(ctx context.Context) (*config.Runtime, error) {
			cfg, err := config.Load(config.WithEnv(cliConfig.EnvPrefix))
			if err != nil {
				return nil, err
			}
			return cfg.Build(ctx)
		},
	}
	if err := NewRootCommand(app).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// App carries what every command needs.
type App struct {
	Out  io.Writer
	Open func(ctx context.Context) (*config.Runtime, error)
}

func (a *App) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *config.Runtime) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := a.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open runtime: %w", err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, rt)
}

func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blobctl",
		Short: "Tiered blob storage and cold storage lifecycle CLI",
		Long: `blobctl writes and reads blobs through the configured storage tiers
and drives the cold storage lifecycle of documents.

Storage, database and lifecycle settings come from BLOBTIER_* environment
variables (see pkg/blobtier/config).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewPutCommand(app))
	rootCmd.AddCommand(NewGetCommand(app))
	rootCmd.AddCommand(NewCreateCommand(app))
	rootCmd.AddCommand(NewShowCommand(app))
	rootCmd.AddCommand(NewArchiveCommand(app))
	rootCmd.AddCommand(NewRetrieveCommand(app))
	rootCmd.AddCommand(NewCheckCommand(app))

	return rootCmd
}
