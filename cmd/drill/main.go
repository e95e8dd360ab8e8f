package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/drill/internal/catalog"
	"github.com/pavelanni/drill/internal/handler"
	appI18n "github.com/pavelanni/drill/internal/i18n"
	"github.com/pavelanni/drill/internal/importer"
	"github.com/pavelanni/drill/internal/llm"
	"github.com/pavelanni/drill/internal/llm/prompts"
	"github.com/pavelanni/drill/internal/metrics"
	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
	"github.com/pavelanni/drill/internal/store"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "drill",
		Short: "Multiple-choice practice trainer",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `drill --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Write logs to this file with rotation instead of stderr")
	f.Int("log-max-size", 10, "Maximum log file size in megabytes before rotation")
	f.Int("log-max-backups", 3, "Number of rotated log files to keep")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP practice server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "drill.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Question bank JSON files to import on startup (repeatable)")
	f.StringP("lang", "l", "en", "UI language (en, ja)")
	f.Int("page-size", 0, "Items per page in listings (0 = per-listing defaults)")
	f.Bool("shuffle-questions", false, "Randomize question order unless a start request says otherwise")
	f.Bool("shuffle-choices", false, "Randomize choice order unless a start request says otherwise")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ja)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the JSON API from a browser")
	f.String("llm-url", "", "OpenAI-compatible API base URL for explanations (empty disables them)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("explain-style", string(prompts.StyleStandard), "Explanation style (brief, standard, detailed)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export practice and answer history as CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "drill.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import question banks and history exports",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "drill.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Question bank JSON files (repeatable)")
	f.String("history", "", "History CSV exported by drill")
	addLogFlags(f)
	return cmd
}

// setupLogging configures the default logger and returns a function that
// releases the log file, if any.
func setupLogging(cmd *cobra.Command) func() {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	if path := v.GetString("log-file"); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    v.GetInt("log-max-size"),
			MaxBackups: v.GetInt("log-max-backups"),
			Compress:   true,
		}
		out = lj
		closeLog = func() { _ = lj.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeLog
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DRILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("drill")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/drill")
	v.AddConfigPath("/etc/drill")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openCatalog opens the database and loads the question catalog from it.
func openCatalog(ctx context.Context, path string) (*store.Store, *catalog.Catalog, error) {
	db, err := store.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	cat := catalog.New(db)
	if err := cat.Load(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	return db, cat, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, cat, err := openCatalog(ctx, v.GetString("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	// Import question banks given on the command line.
	if _, err := importer.New(db, cat).ImportQuestionFiles(ctx, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	m := metrics.New()
	engine := practice.New(cat, db,
		practice.WithMetrics(m),
		practice.WithReviewNamer(func(origin string, t time.Time) string {
			return appI18n.ReviewName(ctx, origin, t)
		}),
	)

	explainer, err := newExplainer(ctx, v)
	if err != nil {
		return err
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		PageSize:         v.GetInt("page-size"),
		ShuffleQuestions: v.GetBool("shuffle-questions"),
		ShuffleChoices:   v.GetBool("shuffle-choices"),
		BasePath:         basePath,
		Lang:             lang,
	}
	h := handler.New(db, cat, engine, explainer, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}
	r.Handle("/metrics", m.Handler())

	var root http.Handler = r
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		root = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Accept-Language"},
		}).Handler(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"questions", cat.Len(),
		"lang", lang,
		"shuffle_questions", cfg.ShuffleQuestions,
		"shuffle_choices", cfg.ShuffleChoices,
		"base_path", basePath,
		"explain", explainer != nil,
	)
	return http.ListenAndServe(addr, root)
}

// newExplainer returns the LLM explainer, or nil when no endpoint is configured.
func newExplainer(ctx context.Context, v *viper.Viper) (handler.Explainer, error) {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Info("LLM explanations disabled")
		return nil, nil
	}
	style := strings.ToLower(strings.TrimSpace(v.GetString("explain-style")))
	if !prompts.IsValidStyle(style) {
		slog.Warn("invalid explain-style, using standard", "style", style)
		style = string(prompts.StyleStandard)
	}
	client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), style)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	// Practice works without the model, so an unreachable endpoint is not fatal.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed", "url", url, "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"), "style", style)
	}
	return client, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := importer.New(db, catalog.New(db)).ExportHistory(ctx, w)
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	slog.Info("exported history", "rows", n, "output", outPath)
	return nil
}

func runImport(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)
	ctx := context.Background()

	questions := v.GetStringSlice("questions")
	historyPath := v.GetString("history")
	if len(questions) == 0 && historyPath == "" {
		return fmt.Errorf("nothing to import: pass --questions and/or --history")
	}

	db, cat, err := openCatalog(ctx, v.GetString("db"))
	if err != nil {
		return err
	}
	defer db.Close()
	im := importer.New(db, cat)

	results, err := im.ImportQuestionFiles(ctx, questions)
	if err != nil {
		return fmt.Errorf("import questions: %w", err)
	}
	for _, res := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions, %d added, skipped=%v\n",
			res.Source, res.Total, res.Added, res.Skipped)
	}

	if historyPath != "" {
		f, err := os.Open(historyPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer f.Close()
		res, err := im.ImportHistory(ctx, f)
		if err != nil {
			return fmt.Errorf("import history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d lists, %d practices, %d answers added\n",
			historyPath, res.Rows, res.QLists, res.Practices, res.Answers)
	}
	return nil
}
