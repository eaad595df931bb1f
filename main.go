package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/weworkmcp/pkg/analysis"
	"github.com/harrisonrobin/weworkmcp/pkg/auth"
	"github.com/harrisonrobin/weworkmcp/pkg/colors"
	"github.com/harrisonrobin/weworkmcp/pkg/config"
	"github.com/harrisonrobin/weworkmcp/pkg/export"
	"github.com/harrisonrobin/weworkmcp/pkg/google"
	"github.com/harrisonrobin/weworkmcp/pkg/httpapi"
	"github.com/harrisonrobin/weworkmcp/pkg/index"
	"github.com/harrisonrobin/weworkmcp/pkg/match"
	"github.com/harrisonrobin/weworkmcp/pkg/mcpserver"
	"github.com/harrisonrobin/weworkmcp/pkg/service"
	"github.com/harrisonrobin/weworkmcp/pkg/wework"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "weworkmcp",
		Short:        "WeWork project analysis over MCP and HTTP",
		SilenceUsage: true,
		Long: `Exposes WeWork projects and tasks to AI assistants (MCP over stdio) and as a
small HTTP JSON API.

Configuration is read from ~/.config/weworkmcp/config.json, then .env and the
environment (WEWORK_ACCESS_TOKEN, WEWORK_BASE_URL, SERVER_MODE, HOST, PORT,
MATCH_THRESHOLD, FETCH_RETRIES, FETCH_RETRY_DELAY, FETCH_TIMEOUT, EXPORT_DIR,
GOOGLE_CALENDAR, LOG_LEVEL, LOG_FORMAT). Flags override both.`,
	}
	root.AddCommand(
		newServeCmd(),
		newAnalyzeCmd(),
		newFindCmd(),
		newSearchCmd(),
		newAuthCmd(),
		newSetCalendarCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var mode, host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio) or the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("mode") {
				cfg.ServerMode = mode
			}
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := buildService(ctx, cfg, logger)

			if cfg.ServerMode == config.ModeStdio {
				logger.Info("starting MCP server on stdio")
				return mcpserver.Serve(mcpserver.New(svc, logger))
			}
			h := httpapi.NewHandler(svc, httpapi.Options{
				UpstreamConfigured: cfg.AccessToken != "",
				Logger:             logger,
			})
			addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
			return httpapi.ListenAndServe(ctx, addr, h, logger)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", config.ModeHTTP, "server mode: http or stdio")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().IntVar(&port, "port", 8000, "HTTP listen port")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var exportCSV bool
	cmd := &cobra.Command{
		Use:   "analyze <project-id>",
		Short: "Print the task analysis of a project as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := cliService(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.AnalyzeProject(cmd.Context(), args[0], exportCSV)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&exportCSV, "csv", false, "also write the table to a CSV file in the export dir")
	return cmd
}

func newFindCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "find <name>",
		Short: "Resolve a project name to the most similar project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := cliService(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.MatchThreshold
			}
			if threshold < 0 || threshold > 1 {
				return fmt.Errorf("threshold must be between 0 and 1, got %v", threshold)
			}
			return printJSON(cmd.OutOrStdout(), svc.FindProjectByName(cmd.Context(), args[0], threshold))
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", match.DefaultThreshold, "minimum similarity between 0 and 1")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "List projects whose names match text, best first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := cliService(cmd.Context())
			if err != nil {
				return err
			}
			projects, err := svc.SearchProjects(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), projects)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	return cmd
}

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Calendar access for deadline sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			dir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("could not find path to configuration directory: %w", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			if err := auth.Reset(dir); err != nil {
				return err
			}
			if _, err := auth.GetCalendarService(cmd.Context(), dir, logger); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", auth.TokenPath(dir))
			return nil
		},
	}
}

func newSetCalendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-calendar <name>",
		Short: "Set the Google calendar that receives task deadlines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			cfg.Calendar = args[0]
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", args[0])
			return nil
		},
	}
}

// cliService loads the configuration and builds the service for one-shot commands.
func cliService(ctx context.Context) (*service.Service, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return buildService(ctx, cfg, logger), cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func buildService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *service.Service {
	if cfg.AccessToken == "" {
		logger.Warn("WEWORK_ACCESS_TOKEN is not set, upstream calls will return no data")
	}
	client := wework.NewClient(wework.Options{
		BaseURL:     cfg.BaseURL,
		TokenSource: wework.StaticToken(cfg.AccessToken),
		Retries:     cfg.FetchRetries,
		RetryDelay:  time.Duration(cfg.FetchRetryDelay),
		Timeout:     time.Duration(cfg.FetchTimeout),
	}, logger)

	deps := service.Deps{
		Upstream: client,
		Analyzer: analysis.NewAnalyzer(logger),
		Matcher:  match.New(logger),
		Exporter: export.NewCSVExporter(cfg.ExportDir),
		Logger:   logger,
	}
	if syncer := buildSyncer(ctx, cfg, logger); syncer != nil {
		deps.Syncer = syncer
	}
	return service.New(deps)
}

// buildSyncer wires deadline sync when a calendar is configured and the user has
// already run `auth`. Any failure leaves sync disabled.
func buildSyncer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *google.Syncer {
	if cfg.Calendar == "" {
		return nil
	}
	log := logger.WithField("calendar", cfg.Calendar)

	dir, err := config.GetConfigDir()
	if err != nil {
		log.WithError(err).Warn("could not find configuration directory, deadline sync disabled")
		return nil
	}
	if _, err := os.Stat(auth.TokenPath(dir)); err != nil {
		log.Warn("no Google token found, run `weworkmcp auth` to enable deadline sync")
		return nil
	}

	idx, err := index.NewEventIndex(dir)
	if err != nil {
		log.WithError(err).Warn("failed to load event index, starting empty")
	}
	cache, err := colors.NewColorCache(dir)
	if err != nil {
		log.WithError(err).Warn("failed to load assignee colors, events keep the calendar color")
	}
	api, err := google.NewClient(ctx, dir, cfg.Calendar, logger)
	if err != nil {
		log.WithError(err).Warn("could not create Google Calendar client, deadline sync disabled")
		return nil
	}
	return google.NewSyncer(api, idx, cache, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
