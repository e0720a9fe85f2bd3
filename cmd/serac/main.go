package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serac-go/internal/app"
	"serac-go/internal/config"
	"serac-go/internal/serac"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults if there is none.
func loadConfig() (*config.Config, *app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults.ConfigPath, defaults.BaseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a SeracApp for destination.
// The caller must defer app.Close().
func newApp(cmd *cobra.Command, destination string, opts app.Options) (*app.SeracApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts.Verbose, _ = cmd.Flags().GetBool("verbose")
	a, err := app.NewSeracApp(cmd.Context(), cfg, destination, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "serac",
	Short:         "Incremental backups to cold object storage",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Chunk Size:    %s\n", cfg.Backup.ChunkSize)
		fmt.Printf("Hash Workers:  %d\n", cfg.Backup.HashWorkers)
		fmt.Printf("Cache:         %s %s\n", cfg.Cache.Type, cfg.Cache.Dir)
		fmt.Printf("Staging:       %s %s\n", cfg.Staging.Type, cfg.Staging.StagingDir)
		fmt.Printf("Archive Class: %s\n", cfg.Storage.ArchiveClass)
		if cfg.Storage.Endpoint != "" {
			fmt.Printf("Endpoint:      %s\n", cfg.Storage.Endpoint)
		}
		if len(cfg.Filesystem.Ignore) > 0 {
			fmt.Printf("Ignore:        %v\n", cfg.Filesystem.Ignore)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup ROOT DESTINATION",
	Short: "Back up new and changed files under ROOT",
	Long: `Back up every new or changed file under ROOT to DESTINATION.

DESTINATION is one of:
  s3://bucket/prefix      Amazon S3
  minio://bucket/prefix   S3-compatible server at storage.endpoint
  file:///path            local directory`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")

		var threshold int64
		if raw, _ := cmd.Flags().GetString("chunk-size"); raw != "" {
			var err error
			if threshold, err = config.ParseSize(raw); err != nil {
				return fmt.Errorf("--chunk-size: %w", err)
			}
		}

		opts := app.Options{DryRun: dryRun}
		if !verbose && term.IsTerminal(int(os.Stderr.Fd())) {
			opts.Progress = os.Stderr
		}

		a, err := newApp(cmd, args[1], opts)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Backup(cmd.Context(), args[0], threshold)
		if result != nil {
			printBackupResult(result)
		}
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		return nil
	},
}

func printBackupResult(result *serac.BackupResult) {
	for _, w := range result.RemoteWarnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: skipped %v\n", w)
	}

	fmt.Printf("Backed up %d file(s) (%s) in %d chunk(s), %d unchanged\n",
		result.FilesUploaded,
		humanize.IBytes(uint64(result.BytesUploaded)),
		len(result.Chunks),
		result.FilesUnchanged,
	)
	if result.ReportKey != "" {
		fmt.Printf("Report: %s\n", result.ReportKey)
	}
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check DESTINATION",
	Short: "Verify access to a destination and its consistency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args[0], app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Check(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%d manifest(s), %d archive(s), %d report(s)\n", result.Manifests, result.Archives, result.Reports)
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list DESTINATION",
	Short: "List the latest version of every backed up file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args[0], app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		catalog, err := a.List(cmd.Context())
		if err != nil {
			return err
		}

		if catalog.Len() == 0 {
			fmt.Println("No files backed up.")
			return nil
		}

		for _, name := range catalog.Names() {
			e := catalog.Lookup(name)
			fmt.Printf("%s  %s  %10d  %s  %s\n",
				e.ChunkID,
				e.Record.Digest[:12],
				e.Record.Size,
				e.Record.Modified.Format("2006-01-02 15:04:05"),
				name,
			)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log DESTINATION NAME",
	Short: "View every backed up version of a file",
	Long:  "NAME is the path of the file relative to the backup root.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args[0], app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.FileHistory(cmd.Context(), args[1])
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No backup history.")
			return nil
		}

		for i, v := range versions {
			current := ""
			if i == 0 {
				current = "  [current]"
			}
			fmt.Printf("%s  %s  %d  mtime:%s  data/%s.tar%s\n",
				v.Record.Digest[:12],
				v.ChunkID.Time().Local().Format("2006-01-02 15:04:05"),
				v.Record.Size,
				v.Record.Modified.Local().Format("2006-01-02 15:04:05"),
				v.ChunkID,
				current,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history DESTINATION",
	Short: "View backup run history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, args[0], app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No backup runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				d := r.FinishedAt.Time.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-8s  %3d chunk(s)  %5d file(s)  %3d warning(s)  %-10s  %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Chunks,
				r.Files,
				r.Warnings,
				duration,
				r.Root,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages to stderr")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().String("chunk-size", "", "Chunk size, e.g. \"64 MiB\" (default from config)")
	backupCmd.Flags().Bool("dry-run", false, "Stage and report without uploading")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
