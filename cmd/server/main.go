package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/pantrio/pantrio/internal/auth"
	"github.com/pantrio/pantrio/internal/config"
	"github.com/pantrio/pantrio/internal/docstore/sqlite"
	"github.com/pantrio/pantrio/internal/handlers"
	"github.com/pantrio/pantrio/internal/metrics"
	"github.com/pantrio/pantrio/internal/middleware"
	"github.com/pantrio/pantrio/internal/service"
	"github.com/pantrio/pantrio/pkg/logging"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	profiles := service.NewProfileService(store)
	groups := service.NewGroupService(store)
	pantry := service.NewPantryService(store)
	chat := service.NewChatService(store, profiles)

	authn := auth.NewPasswordAuthenticator(auth.NewAccountStorage(store))
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	api := handlers.New(store, groups, pantry, chat, profiles, authn, jwtMgr)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.Routes())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	handler := middleware.Logging(middleware.CORS(mux))

	// h2c lets HTTP/2 clients connect without TLS; websocket upgrades stay
	// on HTTP/1.1.
	h2cHandler := h2c.NewHandler(handler, &http2.Server{
		IdleTimeout: 5 * time.Minute,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
	if err := http.ListenAndServe(addr, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
