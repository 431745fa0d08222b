// Package cmd holds the mquery command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
)

type options struct {
	topK     int
	root     string
	format   string
	logLevel string
}

// NewRootCmd builds the mquery command. The query is every positional
// argument joined by spaces.
func NewRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "mquery [flags] <query...>",
		Short: "Search methodology rules with BM25",
		Long: `mquery discovers every rule artifact under --root, builds an in-memory
index and prints the top matches for the query.

Examples:
  mquery flare efficiency
  mquery --k 3 "leak detection survey"
  mquery --root ./methodologies --format json monitoring`,
		Args:          cobra.MinimumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// stdout carries results only.
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.topK, "k", parser.DefaultTopK, "number of results (clamped to 50)")
	cmd.Flags().StringVar(&opts.root, "root", "methodologies", "corpus root to discover units under")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
