package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailbox-export/cmd"
	"github.com/dhcgn/mailbox-export/config"
	"github.com/dhcgn/mailbox-export/export"
	"github.com/dhcgn/mailbox-export/filter"
	"github.com/dhcgn/mailbox-export/folders"
	"github.com/dhcgn/mailbox-export/manifest"
	"github.com/dhcgn/mailbox-export/model"
	"github.com/dhcgn/mailbox-export/progress"
	"github.com/dhcgn/mailbox-export/runner"
	"github.com/dhcgn/mailbox-export/sanitize"
	"github.com/dhcgn/mailbox-export/selection"
	"github.com/dhcgn/mailbox-export/stats"
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "mailbox-export",
		Short:         "Export every mail of a mailbox's folders to individual files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(c)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			logger.Info("starting mailbox-export", "source", cfg.Source, "output", cfg.OutputDir, "store", cfg.Store)

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}

	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(cmd.NewFoldersCmd(setup), cmd.NewPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Operation cancelled by user.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cobra.Command) (config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, cleanup, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	interactive := selection.Interactive()
	prompter := selection.Prompter{}

	outputDir := cfg.OutputDir
	switch {
	case outputDir != "":
		if err := createDir(outputDir); err != nil {
			return err
		}
	case !interactive:
		return fmt.Errorf("--output is required when stdin is not a terminal")
	default:
		initial := defaultOutputDir()
		for {
			dir, err := prompter.OutputDir(initial)
			if err != nil {
				return err
			}
			if err := createDir(dir); err != nil {
				pterm.Error.Println(err)
				initial = dir
				continue
			}
			outputDir = dir
			break
		}
	}

	session, err := runner.OpenSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing session failed", "err", err)
		}
	}()

	store, err := chooseStore(session, cfg, prompter, interactive)
	if err != nil {
		return err
	}
	base := filepath.Join(outputDir, sanitize.Filename(store.Name()))
	if err := createDir(base); err != nil {
		return err
	}
	logger.Info("mailbox selected", "store", store.Name(), "base", base)

	roots, err := store.Folders()
	if err != nil {
		return fmt.Errorf("list folders of %s: %w", store.Name(), err)
	}
	entries := folders.Enumerate(roots, logger)

	f, err := filter.New(filter.Options{Include: cfg.IncludeFolder, Exclude: cfg.ExcludeFolder})
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}
	entries = f.Apply(entries)
	if len(entries) == 0 {
		logger.Warn("no folders found in mailbox", "store", store.Name())
		return nil
	}

	var sel selection.Selection
	switch {
	case cfg.Folders != "":
		sel, err = selection.Parse(cfg.Folders, len(entries))
	case interactive:
		sel, err = prompter.Folders(entries)
	default:
		sel = selection.Selection{All: true}
	}
	if err != nil {
		return err
	}
	chosen := sel.Apply(entries)

	if !cfg.AssumeYes {
		if !interactive {
			return fmt.Errorf("confirmation required: pass --yes when stdin is not a terminal")
		}
		ok, err := prompter.Confirm(chosen)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("export cancelled")
			return nil
		}
	}

	exporter := export.New(export.Options{Extension: cfg.Extension}, logger)
	if cfg.Manifest {
		rec, err := manifest.NewFileRecorder(base)
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("closing manifest failed", "path", rec.Path(), "err", err)
			}
		}()
		exporter.WithRecorder(rec)
	}

	r := runner.New(exporter, logger)
	stats.NewReporter(r, logger)
	progress.NewProgressReporter(r, progress.New(cfg.LogLevel), logger)

	out, err := r.Run(ctx, chosen, base)
	progress.PrintSummary(out, base)
	return err
}

func chooseStore(session model.Session, cfg config.Config, prompter selection.Prompter, interactive bool) (model.Store, error) {
	stores, err := session.Stores()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	switch {
	case cfg.Store != "":
		return selection.ResolveStore(stores, cfg.Store)
	case interactive:
		return prompter.Store(stores)
	case len(stores) == 1:
		return stores[0], nil
	case len(stores) == 0:
		return nil, selection.ErrNoStores
	default:
		return nil, fmt.Errorf("%d mailboxes found, choose one with --store", len(stores))
	}
}

// createDir creates dir and its parents so a bad path fails before any
// folder is exported.
func createDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return nil
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "EmailBackups"
	}
	return filepath.Join(home, "EmailBackups")
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mailbox-export-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
