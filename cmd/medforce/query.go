package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-medforce/internal/log"
	"github.com/teslashibe/go-medforce/pkg/board"
	"github.com/teslashibe/go-medforce/pkg/retrieval"
)

var (
	queryCanvas bool
	queryTopK   int
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run one knowledge-base or canvas query",
	Long: `Query the persisted knowledge base, or with --canvas a fresh snapshot of
the board, and print the matching chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateRetrieval(); err != nil {
			return err
		}

		logger := log.Component("query")
		embedder, err := retrieval.NewEmbedder(cmd.Context(), cfg.Retrieval, cfg.GoogleAPIKey, cfg.OpenAIKey)
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		var out string
		if queryCanvas {
			client, err := board.New(cfg.Board, logger)
			if err != nil {
				return err
			}
			out = retrieval.New(cfg.Retrieval, nil, embedder, client, logger).QuerySnapshot(cmd.Context(), text, queryTopK)
		} else {
			store, err := retrieval.OpenPersistent(cfg.Retrieval.PersistDir)
			if err != nil {
				return err
			}
			out = retrieval.New(cfg.Retrieval, store, embedder, nil, logger).Query(cmd.Context(), text, queryTopK)
		}

		if out == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(no results)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryCanvas, "canvas", false, "query a live board snapshot instead of the knowledge base")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", retrieval.DefaultTopK, "number of chunks to return")
}
