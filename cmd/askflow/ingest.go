package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/askflow/config"
	"github.com/sweetpotato0/askflow/pkg/logging"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Load .txt, .md and .html files into the persistent document index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Retriever.Backend != config.BackendPG && cfg.Retriever.Backend != config.BackendMongo {
				return fmt.Errorf("retriever %q is not persistent; set ASKFLOW_RETRIEVER to pg or mongo, or point ASKFLOW_DOCS_DIR at the files", cfg.Retriever.Backend)
			}

			a := &app{cfg: cfg, logger: logging.WithComponent("ingest")}
			defer a.Close(context.Background())

			embedder := buildEmbedder(cfg.Embedding)
			idx, err := a.openIndex(ctx, embedder)
			if err != nil {
				return err
			}
			pipeline, err := a.newIngestPipeline(idx, embedder)
			if err != nil {
				return err
			}
			stats, err := pipeline.IngestDir(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents as %d chunks\n", stats.Documents, stats.Chunks)
			return nil
		},
	}
}
