// Package main runs an in-memory twin of the remote table API for local
// development against the table gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devrev/tablegateway/internal/airtable/airtabletest"
	"github.com/devrev/tablegateway/internal/redact"
	"go.uber.org/zap"
)

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	seedPath := flag.String("seed", "", "path to a YAML fixture to preload")
	apiKey := flag.String("api-key", "", "only accept this bearer token (default: any token)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var opts []airtabletest.Option
	if *apiKey != "" {
		opts = append(opts, airtabletest.WithAPIKey(*apiKey))
	}
	twin := airtabletest.NewServer(opts...)

	if *seedPath != "" {
		fixture, err := airtabletest.LoadFixtureFile(*seedPath)
		if err != nil {
			logger.Fatal("failed to load seed", zap.String("path", *seedPath), zap.Error(err))
		}
		n := twin.Store().Seed(fixture)
		logger.Info("seeded twin",
			zap.String("path", *seedPath),
			zap.Int("tables", len(fixture.Tables)),
			zap.Int("records", n),
		)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           logRequests(logger, twin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown twin", zap.Error(err))
		}
	}()

	logger.Info("airtable twin listening",
		zap.Int("port", *port),
		zap.String("base_url", fmt.Sprintf("http://localhost:%d/v0", *port)),
		zap.String("api_key", redact.Secret(*apiKey)),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("twin server error", zap.Error(err))
	}
}

// logRequests logs one line per request and clears the twin's request log,
// which is only inspected by tests.
func logRequests(logger *zap.Logger, twin *airtabletest.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		twin.ServeHTTP(w, r)
		twin.ResetRequests()
		logger.Debug("twin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
