package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-medforce/internal/log"
	"github.com/teslashibe/go-medforce/pkg/retrieval"
)

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Build the knowledge base from a directory of .txt files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateRetrieval(); err != nil {
			return err
		}

		logger := log.Component("index")
		store, err := retrieval.OpenPersistent(cfg.Retrieval.PersistDir)
		if err != nil {
			return err
		}
		embedder, err := retrieval.NewEmbedder(cmd.Context(), cfg.Retrieval, cfg.GoogleAPIKey, cfg.OpenAIKey)
		if err != nil {
			return err
		}

		r := retrieval.New(cfg.Retrieval, store, embedder, nil, logger)
		n, err := r.BuildFromTexts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks into %s (%s)\n", n, cfg.Retrieval.Collection, cfg.Retrieval.PersistDir)
		return nil
	},
}
