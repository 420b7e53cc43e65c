package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"nursedesk/internal/config"
	"nursedesk/internal/database"
	"nursedesk/internal/domain"
	"nursedesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "nursedesk",
		Short:        "Nursing office appointment booking service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $"+config.PathEnv+" or "+config.DefaultPath+")")

	load := func() (*config.Config, zerolog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
		return cfg, newLogger(cfg.Logging), nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(backupCmd(load))
	rootCmd.AddCommand(rosterCmd(load))
	rootCmd.AddCommand(slotsCmd(load))
	return rootCmd
}

type loader func() (*config.Config, zerolog.Logger, error)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return runServer(cfg, &logger)
		},
	}
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			store, _, err := openStore(cmd.Context(), cfg, &logger)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", cfg.Database.Driver)
			return nil
		},
	}
}

func backupCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a SQLite snapshot and prune expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverSQLite {
				return fmt.Errorf("backup is only supported for the %s driver", config.DriverSQLite)
			}

			store, db, err := openStore(cmd.Context(), cfg, &logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := database.NewBackupService(db, cfg.Backup, cfg.BackupInterval(), &logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			removed := svc.CleanupOldBackups()
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s (%d expired removed).\n", path, removed)
			return nil
		},
	}
}

func rosterCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Manage the people roster",
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Insert roster entries missing from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")

			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Roster.Path
			}
			if file == "" {
				return fmt.Errorf("--file is required when roster.path is not configured")
			}

			roster, err := config.LoadRoster(file)
			if err != nil {
				return err
			}

			store, _, err := openStore(cmd.Context(), cfg, &logger)
			if err != nil {
				return err
			}
			defer store.Close()

			added, err := store.SyncRoster(cmd.Context(), roster.Persons())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Roster synced: %d added, %d total.\n", added, len(roster.People))
			return nil
		},
	}
	syncCmd.Flags().String("file", "", "Roster YAML file (defaults to roster.path)")

	cmd.AddCommand(syncCmd)
	return cmd
}

func slotsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage appointment slots",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add an Available slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			actor, _ := cmd.Flags().GetString("actor")

			if _, err := models.ParseDate(date); err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			if _, err := models.ParseClock(clock); err != nil {
				return fmt.Errorf("--time must be HH:MM: %w", err)
			}

			cfg, logger, err := load()
			if err != nil {
				return err
			}
			store, _, err := openStore(cmd.Context(), cfg, &logger)
			if err != nil {
				return err
			}
			defer store.Close()

			slot, err := store.ProvisionSlot(cmd.Context(), date, clock, actor, time.Now())
			if errors.Is(err, domain.ErrSlotExists) {
				return fmt.Errorf("a slot already exists on %s at %s", date, clock)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Slot %d created for %s %s.\n", slot.ID, slot.Date, slot.Time)
			return nil
		},
	}
	addCmd.Flags().String("date", "", "Slot date (YYYY-MM-DD)")
	addCmd.Flags().String("time", "", "Slot time (HH:MM)")
	addCmd.Flags().String("actor", "admin", "Recorded as the slot creator")
	_ = addCmd.MarkFlagRequired("date")
	_ = addCmd.MarkFlagRequired("time")

	cmd.AddCommand(addCmd)
	return cmd
}
