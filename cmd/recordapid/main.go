// recordapid runs the record API server: a token-authenticated CRUD
// service over an in-memory record collection.
//
// Configuration comes from an optional YAML file (-config flag) with the
// PORT environment variable overriding the listen port. Without a config
// file the server starts with the built-in seed dataset and a signing
// key from RECORDAPI_SIGNING_KEY.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/stackpine/recordapi"
	"github.com/stackpine/recordapi/instrumentation"
	"github.com/stackpine/recordapi/storage/memory"
	"github.com/stackpine/recordapi/token"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.SigningKey == "" {
		cfg.SigningKey = getEnvOrDefault("RECORDAPI_SIGNING_KEY", "")
	}
	if cfg.SigningKey == "" {
		log.Fatal("signing key is required: set signing_key in the config file or RECORDAPI_SIGNING_KEY")
	}

	store := memory.New()
	store.SetLogger(logger)

	tokens, err := token.NewService([]byte(cfg.SigningKey), cfg.TokenTTL)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	server, err := recordapi.NewServer(store, store, tokens, cfg, logger)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	defer server.Close()

	// Seed from the effective config so defaults apply when no file was given.
	seed := server.Config().Seed
	for _, u := range seed.Users {
		if err := store.SeedUser(u.ID, u.Username, u.Password); err != nil {
			log.Fatalf("seeding user %q: %v", u.Username, err)
		}
	}
	for _, rec := range seed.Records {
		store.SeedRecord(rec.Name, rec.Age)
	}

	instr, err := instrumentation.New(instrumentation.Config{
		ServiceName: "recordapid",
		Enabled:     os.Getenv("RECORDAPI_OTEL") == "true",
	})
	if err != nil {
		log.Fatalf("instrumentation: %v", err)
	}
	server.SetInstrumentation(instr)

	handler := recordapi.NewHandler(server, logger)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(server.Config().Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "port", server.Config().Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()

	<-stop
	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := instr.Shutdown(ctx); err != nil {
		logger.Error("Instrumentation shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}

// loadConfig reads the config file when given, otherwise starts from an
// empty config so defaults and env overrides apply.
func loadConfig(path string) (*recordapi.Config, error) {
	if path != "" {
		return recordapi.LoadConfig(path)
	}
	cfg := &recordapi.Config{}
	if raw := os.Getenv("PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 && port <= 65535 {
			cfg.Port = port
		}
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
