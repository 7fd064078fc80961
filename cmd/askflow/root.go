package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/askflow/config"
	"github.com/sweetpotato0/askflow/mcp"
	"github.com/sweetpotato0/askflow/pkg/logging"
)

type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "askflow",
		Short:         "Answer questions from your documents and the web",
		Version:       mcp.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `askflow rewrites a question with the help of the conversation so far,
checks that it is clear enough to answer, picks the document index and/or the
web as sources, and writes a grounded answer. Low-confidence answers come with
follow-up questions.

Configuration is read from the environment (ASKFLOW_*), optionally seeded
from a .env file.`,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "text or json")
	// Answers go to stdout, so logs stay on stderr.
	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		logging.SetLogger(logging.New(os.Stderr, opts.logLevel, opts.logFormat))
	}

	cmd.AddCommand(newAskCmd(opts), newIngestCmd(opts), newMCPCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.envFile)
}
