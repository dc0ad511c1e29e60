// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/archive"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List and show archived research runs",
	Long: `Archive reads the SQLite database named by --archive-db. Runs are saved
there by the root command when --archive-db is set.`,
}

// --- list subcommand ---

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runArchiveList,
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	formatRunList(runs, cmd.OutOrStdout())
	return nil
}

func formatRunList(runs []archive.RunSummary, w io.Writer) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return
	}

	fmt.Fprintf(w, "%-8s  %-20s  %-6s  %-7s  %s\n", "ID", "Started", "Rounds", "Batches", "Question")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		question := r.Question
		if len(question) > 50 {
			question = question[:47] + "..."
		}
		fmt.Fprintf(w, "%-8s  %-20s  %-6d  %-7d  %s\n",
			id, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Rounds, r.Batches, question)
	}

	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}

// --- show subcommand ---

var archiveShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived run as markdown, YAML, or JSON",
	Long: `Show prints one archived run. The ID may be any unique prefix, such as
the eight characters shown by "archive list". Markdown prints the report;
YAML and JSON include every batch and source.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveShow,
}

func runArchiveShow(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	format, err := archive.ParseFormat(formatName)
	if err != nil {
		return err
	}

	store, err := openArchive()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return archive.Export(cmd.OutOrStdout(), result, format)
}

func openArchive() (*archive.Store, error) {
	path := viper.GetString("archive-db")
	if path == "" {
		return nil, fmt.Errorf("no archive configured: set --archive-db or DEEP_RESEARCH_ARCHIVE_DB")
	}
	return archive.Open(path)
}

func init() {
	archiveListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	archiveShowCmd.Flags().String("format", "markdown", "output format: markdown, yaml, or json")

	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	rootCmd.AddCommand(archiveCmd)
}
