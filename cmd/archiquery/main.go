// Command archiquery serves and drives retrieval-augmented question answering
// over ingested regulation documents.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Khogao/archi-query-master-sub000/internal/config"
	"github.com/Khogao/archi-query-master-sub000/internal/version"
)

type rootOptions struct {
	env        string
	configPath string
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "archiquery",
		Short:         "Ask questions against indexed building regulations",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "environment name (local, prod)")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a config file (overrides --env lookup)")

	root.AddCommand(
		newServeCommand(opts),
		newIngestCommand(opts),
		newQueryCommand(opts),
		newProvidersCommand(opts),
		newDeleteCommand(opts),
		newUsageCommand(opts),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "archiquery %s\ncommit: %s\nbuilt:  %s\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
