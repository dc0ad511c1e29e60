// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one web search and print the normalized results",
	Long: `Search sends a single query to the configured search backend and prints
the results after normalization, exactly as the research loop would see them.
Use it to check a backend or tune --result-query against a new provider.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	searcher, err := newSearcher(cfg.Search, logger)
	if err != nil {
		return err
	}

	results, err := searcher.Search(cmd.Context(), strings.Join(args, " "), cfg.Search.MaxResults)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(results, cmd.OutOrStdout())
	}
	search.FormatTable(results, cmd.OutOrStdout())
	return nil
}

func init() {
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}
