package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skobkin/isxgo/internal/app"
	"github.com/skobkin/isxgo/internal/config"
	"github.com/skobkin/isxgo/internal/export"
	"github.com/skobkin/isxgo/internal/persistence"
)

func newRunsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect measurement runs stored in SQLite",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(db *sql.DB) error {
				runs, err := persistence.NewRunRepo(db).List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no runs stored")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tSTARTED\tPORT\tRESULTS\tTIMED OUT")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%t\n",
						r.ID, r.StartedAt.Local().Format(time.DateTime), r.Port, r.Received, r.Expected, r.TimedOut)
				}

				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", app.RecentRunsLoad, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print the results of one run as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(db *sql.DB) error {
				repo := persistence.NewRunRepo(db)
				if _, err := repo.Get(cmd.Context(), args[0]); err != nil {
					return err
				}
				results, err := repo.Results(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return export.WriteCSV(cmd.OutOrStdout(), results)
			})
		},
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}

			return c.withStore(cmd.Context(), func(db *sql.DB) error {
				n, err := persistence.DeleteRunsBefore(cmd.Context(), db, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs\n", n)

				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the newest run to delete")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(db *sql.DB) error {
				return persistence.ClearDatabase(cmd.Context(), db)
			})
		},
	}

	cmd.AddCommand(list, show, prune, clearCmd)

	return cmd
}

// withStore opens the configured run database, falling back to the one in the
// user config dir.
func (c *cli) withStore(ctx context.Context, fn func(*sql.DB) error) error {
	path := c.cfg.Output.SQLitePath
	if path == "" {
		path = c.paths.DBFile
	}

	db, err := persistence.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			c.logger.Warn("close sqlite", "error", closeErr)
		}
	}()

	return fn(db)
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := yaml.Marshal(c.cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(raw)

			return err
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(c.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", c.configPath)
			}
			if err := config.Save(c.configPath, c.cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", c.configPath)

			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.VersionLine())
		},
	}
}
