// Package main is the entrypoint for beanserver.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. With no subcommand it serves.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beanserver",
		Short: "Distributed component server",
		Long: `beanserver hosts stateless, stateful, entity and singleton components and serves
them over the binary bean protocol, with naming lookup and an admin JSON-RPC endpoint.

Environment: BEAN_LISTEN_ADDR, BEAN_MANIFEST_FILE, BEAN_AUTH_MODE, BEAN_AUTH_USERS,
COMMS_URL, DATABASE_URL, RUN_MIGRATIONS, MIGRATION_PATH, KEYGEN_BOLT_PATH, HTTP_PORT, LOG_LEVEL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newEnsureDBCommand())
	cmd.AddCommand(newDeploymentsCommand())
	return cmd
}
