package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/morezero/beanserver/internal/config"
	"github.com/morezero/beanserver/internal/server"
	"github.com/morezero/beanserver/pkg/admin"
	"github.com/morezero/beanserver/pkg/db"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Start the bean server (protocol, HTTP admin, deployments)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	return server.Run()
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage key generator database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Run pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "status",
		Short:        "Show applied and pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	})
	return cmd
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp(ctx context.Context) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func newEnsureDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-db [name]",
		Short: "Create the database if missing (default name: beanserver_test)",
		Long: `Create a database on the same host as DATABASE_URL, using its user and query
parameters. Run tests against the resulting URL.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "beanserver_test"
			if len(args) == 1 && args[0] != "" {
				name = args[0]
			}
			return runEnsureDB(cmd.Context(), cmd.OutOrStdout(), name)
		},
	}
}

func runEnsureDB(ctx context.Context, out io.Writer, dbName string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	target, err := withDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(ctx, target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %q is ready.\n", dbName)
	return nil
}

// withDatabase replaces the path of databaseURL with dbName, keeping the query.
func withDatabase(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

type deploymentsOptions struct {
	url     string
	kind    string
	format  string
	timeout time.Duration
}

func newDeploymentsCommand() *cobra.Command {
	opts := &deploymentsOptions{}
	cmd := &cobra.Command{
		Use:          "deployments [name]",
		Short:        "List deployments, or describe one, through the admin endpoint",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			c := admin.NewClient(opts.url)

			var infos []admin.DeploymentInfo
			if len(args) == 1 {
				info, err := c.Describe(ctx, args[0])
				if err != nil {
					return err
				}
				infos = []admin.DeploymentInfo{info}
			} else {
				list, err := c.ListDeployments(ctx, opts.kind)
				if err != nil {
					return err
				}
				infos = list
			}
			return printDeployments(cmd.OutOrStdout(), opts.format, infos)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://127.0.0.1:8080/rpc", "admin JSON-RPC endpoint")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "only list deployments of this kind")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format (json|text)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func printDeployments(out io.Writer, format string, infos []admin.DeploymentInfo) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tKIND\tVERSION\tHOME\tREMOTE")
	for _, d := range infos {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", d.Index, d.Name, d.Kind, d.Version, d.HomeInterface, d.RemoteInterface)
	}
	return tw.Flush()
}
