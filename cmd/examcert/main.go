package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/examcert/internal/certificate"
	"github.com/pavelanni/examcert/internal/handler"
	appI18n "github.com/pavelanni/examcert/internal/i18n"
	"github.com/pavelanni/examcert/internal/llm"
	"github.com/pavelanni/examcert/internal/metrics"
	"github.com/pavelanni/examcert/internal/model"
	"github.com/pavelanni/examcert/internal/store"
)

//go:generate templ generate -path ../../internal/handler/views

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examcert",
		Short: "LLM-generated exams with a downloadable certificate",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), certificateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examcert --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Write logs to this file, rotated by size (default stderr)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Float32("llm-temperature", llm.DefaultTemperature, "Sampling temperature for exam generation")
	f.Bool("llm-json-mode", true, "Request a JSON object response from the LLM")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("session-db", ":memory:", "SQLite database for exam sessions")
	f.Duration("session-ttl", store.DefaultTTL, "How long an idle exam session is kept")
	addLLMFlags(f)
	f.Bool("llm-ping", true, "Check the LLM endpoint before serving")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exam)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the JSON API (default any)")
	f.Int("rate-limit", 10, "Exam generations per client per rate window (0 disables)")
	f.Duration("rate-window", time.Minute, "Rate limit window")
	f.Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	addLogFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one exam and print it as JSON",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.String("course", "", "Course name (required)")
	f.String("level", "", "Exam level: beginner, intermediate or advanced (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLLMFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("level")

	return cmd
}

func certificateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certificate",
		Short: "Render a certificate PNG without running an exam",
		RunE:  runCertificate,
	}
	f := cmd.Flags()
	f.String("name", "", "Learner name (required)")
	f.String("course", "", "Course name (required)")
	f.String("level", "", "Exam level (required)")
	f.Int("score", 0, "Final score in percent")
	f.StringP("lang", "l", "en", "Certificate language (en, ru)")
	f.StringP("output", "o", "", "Output file path (default {name}-{course}-certificate.png)")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("level")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
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
	if file := v.GetString("log-file"); file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
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
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMCERT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examcert")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examcert")
	v.AddConfigPath("/etc/examcert")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newLLMClient(v *viper.Viper) (*llm.Client, error) {
	return llm.New(llm.Options{
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       v.GetString("llm-model"),
		Temperature: float32(v.GetFloat64("llm-temperature")),
		JSONMode:    v.GetBool("llm-json-mode"),
	})
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// newRouter mounts the handler, under basePath when one is set.
func newRouter(h *handler.Handler, m *metrics.Metrics, basePath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(appI18n.Middleware())

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
	return r
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("session-db"), v.GetDuration("session-ttl"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()

	llmClient, err := newLLMClient(v)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if v.GetBool("llm-ping") {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		err := llmClient.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		SessionTTL:    v.GetDuration("session-ttl"),
		Lang:          lang,
		CORSOrigins:   v.GetStringSlice("cors-origins"),
		RateLimit:     v.GetInt("rate-limit"),
		RateWindow:    v.GetDuration("rate-window"),
	}

	var m *metrics.Metrics
	if v.GetBool("metrics") {
		m = metrics.New()
	}
	h, err := handler.New(db, llmClient, m, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(h, m, basePath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"base_path", basePath,
			"session_db", v.GetString("session-db"),
			"rate_limit", cfg.RateLimit,
			"rate_window", cfg.RateWindow,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	level, err := model.ParseLevel(v.GetString("level"))
	if err != nil {
		return err
	}
	course := strings.TrimSpace(v.GetString("course"))
	if course == "" {
		return errors.New("course must not be empty")
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	doc, err := llmClient.Generate(cmd.Context(), course, level)
	if err != nil {
		return fmt.Errorf("generate exam: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	output := v.GetString("output")
	if output == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported exam", "file", output, "questions", doc.Len())
	return nil
}

func runCertificate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	level, err := model.ParseLevel(v.GetString("level"))
	if err != nil {
		return err
	}
	score := v.GetInt("score")
	if score < 0 || score > 100 {
		return fmt.Errorf("score %d out of range 0-100", score)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang))

	cert := certificate.Certificate{
		Username: v.GetString("name"),
		Course:   v.GetString("course"),
		Level:    string(level),
		Score:    score,
		IssuedAt: time.Now(),
		Labels:   handler.CertificateLabels(ctx),
	}

	output := v.GetString("output")
	if output == "" {
		output = certificate.Filename(cert.Username, cert.Course)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := certificate.Render(f, cert); err != nil {
		f.Close()
		return fmt.Errorf("render certificate: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("certificate written", "file", output)
	return nil
}
