// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/archive"
	"github.com/pdiddy/deep-research/internal/chat"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/internal/telemetry"
	"github.com/pdiddy/deep-research/pkg/types"
)

const reportBanner = "\n===== Deep Search Report =====\n"

func runResearch(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: version,
		Disable:        !cfg.Trace,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("flushing spans failed", "error", err)
		}
	}()

	client, err := chat.New(cfg.Chat, chat.WithLogger(logger))
	if err != nil {
		return err
	}
	searcher, err := newSearcher(cfg.Search, logger)
	if err != nil {
		return err
	}

	logger.Info("starting research",
		"chat_backend", cfg.Chat.Backend, "search_backend", searcher.Name(),
		"model", cfg.Chat.Model, "max_extra_rounds", cfg.Research.MaxExtraRounds)

	orch := research.New(client, searcher, cfg.Research, logger)
	result, err := orch.Run(ctx, question)
	if err != nil {
		return err
	}

	if err := printReport(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if cfg.Output != "" {
		if err := archive.WriteFile(cfg.Output, result); err != nil {
			return fmt.Errorf("writing %s: %w", cfg.Output, err)
		}
		logger.Info("wrote result", "path", cfg.Output)
	}

	if cfg.Archive.Path != "" {
		if err := saveToArchive(ctx, cfg.Archive.Path, result); err != nil {
			return err
		}
	}
	return nil
}

func printReport(w io.Writer, result *types.ResearchResult) error {
	_, err := fmt.Fprintf(w, "%s%s\n", reportBanner, result.ReportMarkdown)
	return err
}

func saveToArchive(ctx context.Context, path string, result *types.ResearchResult) error {
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(ctx, result); err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}
	logger.Info("archived run", "id", result.ID, "path", path)
	return nil
}

// newSearcher builds the configured search backend, compiling the optional
// result query first so a bad expression fails before any network call.
func newSearcher(cfg types.SearchConfig, logger *slog.Logger) (search.Searcher, error) {
	rq, err := search.CompileResultQuery(cfg.ResultQuery)
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case types.SearchToolRuntime, "":
		return search.NewToolRuntime(cfg, rq, logger), nil
	case types.SearchTavily:
		return search.NewTavily(cfg, rq, logger), nil
	default:
		return nil, fmt.Errorf("unknown search backend %q (valid: tool, tavily)", cfg.Backend)
	}
}
