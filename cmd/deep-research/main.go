// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the deep-research CLI. The root command
// runs one research loop for a question and prints the compiled report;
// subcommands expose single searches and the run archive.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Set

// logger is configured in PersistentPreRunE from --log-level and --verbose.
var logger = slog.Default()

const (
	defaultBaseURL = "http://localhost:8321"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 2 * time.Minute
)

// rootCmd runs the research loop for the question given as arguments.
var rootCmd = &cobra.Command{
	Use:   "deep-research [flags] <question>",
	Short: "Iterative web research with a language model",
	Long: `deep-research answers a question by planning web search queries with a
language model, summarizing the results with citations, judging whether the
evidence is sufficient, and refining with new queries until it is or the round
budget runs out. The final cited markdown report is printed to stdout.

The model is reached through a Llama Stack server (agents API) or any
OpenAI-compatible endpoint. Search runs through the Llama Stack tool runtime
or directly against Tavily.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.Setup(os.Stderr, viper.GetString("log-level"), viper.GetBool("verbose"))
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := s.Keys()
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
	RunE: runResearch,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./deep-research.yaml or ~/.config/deep-research/config.yaml)")
	pf.String("base-url", envDefault("LLAMA_STACK_BASE_URL", defaultBaseURL), "Llama Stack server URL; with --chat-backend openai, the OpenAI-compatible API root (e.g. http://localhost:8321/v1/openai/v1)")
	pf.String("model-id", envDefault("LLAMA_STACK_MODEL_ID", defaultModel), "model identifier")
	pf.String("chat-backend", string(types.ChatLlamaStack), "chat endpoint: llamastack or openai")
	pf.String("search-backend", string(types.SearchToolRuntime), "search endpoint: tool or tavily")
	pf.String("search-base-url", "", "Llama Stack server URL for the tool search backend (default: --base-url)")
	pf.String("tool-group", "", "Llama Stack tool group searched for a websearch tool (default builtin::websearch)")
	pf.Int("max-results", types.DefaultMaxResults, "search results requested per query")
	pf.String("result-query", "", "jq expression applied to raw search payloads before normalization")
	pf.Duration("timeout", defaultTimeout, "HTTP request timeout")
	pf.Bool("verbose", false, "enable debug logging")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.Bool("trace", false, "write OpenTelemetry spans to stderr")
	pf.String("archive-db", "", "SQLite archive path; completed runs are saved when set")

	f := rootCmd.Flags()
	f.Int("max-extra-rounds", types.DefaultMaxExtraRounds, "refinement rounds allowed after the first")
	f.Bool("parallel", false, "search and summarize a round's queries concurrently")
	f.String("output", "", "also write the full result to a .md, .yaml, .yml, or .json file")

	bindFlags(rootCmd)
}

// bindFlags exposes every flag of cmd to viper under its own name, so that
// config file keys and DEEP_RESEARCH_* variables share one namespace.
func bindFlags(cmd *cobra.Command) {
	_ = viper.BindPFlags(cmd.PersistentFlags())
	_ = viper.BindPFlags(cmd.Flags())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deep-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "deep-research"))
		}
	}

	viper.SetEnvPrefix("DEEP_RESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// envDefault returns the named environment variable, or fallback when unset.
func envDefault(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// loadRunConfig assembles the run settings from viper and loaded secrets.
func loadRunConfig(v *viper.Viper, s secrets.Set) (types.RunConfig, error) {
	httpCfg := types.HTTPConfig{
		Timeout:   v.GetDuration("timeout"),
		UserAgent: "deep-research/" + version,
	}
	if httpCfg.Timeout <= 0 {
		httpCfg.Timeout = defaultTimeout
	}

	baseURL := strings.TrimSpace(v.GetString("base-url"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	searchURL := strings.TrimSpace(v.GetString("search-base-url"))
	if searchURL == "" {
		searchURL = baseURL
	}
	model := strings.TrimSpace(v.GetString("model-id"))
	if model == "" {
		model = defaultModel
	}

	cfg := types.RunConfig{
		Chat: types.ChatConfig{
			HTTPConfig: httpCfg,
			Backend:    types.ChatBackend(strings.ToLower(v.GetString("chat-backend"))),
			BaseURL:    baseURL,
			Model:      model,
		},
		Search: types.SearchConfig{
			HTTPConfig:  httpCfg,
			Backend:     types.SearchBackend(strings.ToLower(v.GetString("search-backend"))),
			BaseURL:     searchURL,
			ToolGroup:   v.GetString("tool-group"),
			MaxResults:  v.GetInt("max-results"),
			ResultQuery: v.GetString("result-query"),
		},
		Research: types.ResearchConfig{
			MaxExtraRounds: v.GetInt("max-extra-rounds"),
			MaxResults:     v.GetInt("max-results"),
			Parallel:       v.GetBool("parallel"),
		},
		Archive: types.ArchiveConfig{Path: v.GetString("archive-db")},
		Output:  v.GetString("output"),
		Trace:   v.GetBool("trace"),
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = types.DefaultMaxResults
		cfg.Research.MaxResults = types.DefaultMaxResults
	}

	switch cfg.Chat.Backend {
	case "", types.ChatLlamaStack:
		cfg.Chat.Backend = types.ChatLlamaStack
		cfg.Chat.APIKey = s.Get(secrets.LlamaStackAPIKey)
	case types.ChatOpenAI:
		cfg.Chat.APIKey = s.Get(secrets.OpenAIAPIKey)
	default:
		return types.RunConfig{}, fmt.Errorf("unknown chat backend %q (valid: llamastack, openai)", cfg.Chat.Backend)
	}

	switch cfg.Search.Backend {
	case "", types.SearchToolRuntime:
		cfg.Search.Backend = types.SearchToolRuntime
		cfg.Search.APIKey = s.Get(secrets.LlamaStackAPIKey)
	case types.SearchTavily:
		cfg.Search.APIKey = s.Get(secrets.TavilyAPIKey)
	default:
		return types.RunConfig{}, fmt.Errorf("unknown search backend %q (valid: tool, tavily)", cfg.Search.Backend)
	}

	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
