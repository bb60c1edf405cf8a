package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"schoolportal/internal/handler"
	appI18n "schoolportal/internal/i18n"
	"schoolportal/internal/model"
	"schoolportal/internal/quiz"
	"schoolportal/internal/session"
	"schoolportal/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "portal",
		Short: "Web portal for the school information system",
	}

	serve := serveCmd()
	root.AddCommand(serve, cleanupCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `portal --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP portal server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "portal.db", "SQLite database path for browser sessions")
	f.String("api-url", "http://localhost:8000", "Upstream school API base URL")
	f.StringP("lang", "l", "en", "UI language (en, fr)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /portal)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("session-secret", "", "Secret for sealing stored tokens (or set PORTAL_SESSION_SECRET)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired browser sessions from the database",
		RunE:  runCleanup,
	}
	f := cmd.Flags()
	f.String("db", "portal.db", "SQLite database path for browser sessions")
	f.String("session-secret", "", "Secret for sealing stored tokens (or set PORTAL_SESSION_SECRET)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("portal")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/portal")
	v.AddConfigPath("/etc/portal")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	secret := v.GetString("session-secret")
	if secret == "" {
		slog.Warn("no session secret set; stored tokens will not be sealed")
	}

	db, err := store.New(v.GetString("db"), secret)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if n, err := db.CleanupExpired(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("cleaned up expired sessions", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	apiURL := strings.TrimRight(v.GetString("api-url"), "/")
	if apiURL == "" {
		return fmt.Errorf("api-url is required")
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.PortalConfig{
		APIURL:        apiURL,
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		Lang:          lang,
	}

	sessions := session.NewManager(db, apiURL)
	attempts := quiz.NewRegistry()
	go func() {
		// Results stay viewable for an hour after submission, then the
		// attempt is dropped.
		for range time.Tick(10 * time.Minute) {
			if n := attempts.Sweep(time.Now().Add(-time.Hour)); n > 0 {
				slog.Debug("swept settled quiz attempts", "count", n)
			}
		}
	}()

	h, err := handler.New(sessions, attempts, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

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

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"api_url", apiURL,
		"lang", lang,
		"base_path", basePath,
		"secure_cookies", cfg.SecureCookies,
	)
	return http.ListenAndServe(addr, r)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"), v.GetString("session-secret"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := db.CleanupExpired()
	if err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}

	remaining, err := db.SessionCount()
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}

	slog.Info("cleanup complete", "deleted", n, "remaining", remaining)
	return nil
}
