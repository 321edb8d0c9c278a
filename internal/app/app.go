// Package app wires the server process: the logging router, the session
// loop inside its hub, the optional round archive, and the HTTP surface,
// torn down in reverse order when the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"pinball-gacha/server/internal/archive"
	"pinball-gacha/server/internal/hub"
	"pinball-gacha/server/internal/layout"
	servernet "pinball-gacha/server/internal/net"
	"pinball-gacha/server/internal/observability"
	"pinball-gacha/server/internal/session"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/internal/telemetry"
	"pinball-gacha/server/logging"
	loggingSinks "pinball-gacha/server/logging/sinks"
)

// Config carries process-level options. Environment variables override the
// zero values: PINGACHA_ADDR, PINGACHA_ARCHIVE_DIR, PINGACHA_LAYOUT,
// PINGACHA_CLIENT_DIR, PINGACHA_LOG_JSON, BROADCAST_EVERY_TICKS and
// ENABLE_PPROF_TRACE. Unparseable values fall back with a logged warning.
type Config struct {
	Logger        telemetry.Logger
	Addr          string
	ArchiveDir    string
	LayoutPath    string
	ClientDir     string
	Observability observability.Config
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}
	if path := os.Getenv("PINGACHA_LOG_JSON"); path != "" {
		logConfig.JSON.FilePath = path
	}
	if logConfig.JSON.FilePath != "" {
		jsonSink, err := loggingSinks.NewJSONFile(logConfig.JSON)
		if err != nil {
			telemetryLogger.Printf("cannot open json log %q: %v", logConfig.JSON.FilePath, err)
		} else {
			logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
			namedSinks = append(namedSinks, logging.NamedSink{Name: "json", Sink: jsonSink})
		}
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	sessionCfg := session.DefaultConfig()
	layoutPath := cfg.LayoutPath
	if raw := os.Getenv("PINGACHA_LAYOUT"); raw != "" {
		layoutPath = raw
	}
	if layoutPath != "" {
		doc, err := layout.Load(layoutPath)
		if err != nil {
			return fmt.Errorf("load layout: %w", err)
		}
		sessionCfg.Layout = &doc
		telemetryLogger.Printf("loaded machine layout %q from %s", doc.Name, layoutPath)
	}

	metrics := telemetry.NewCounters()
	core := session.New(sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   metrics,
		Clock:     logging.SystemClock{},
		Publisher: router,
	}, sessionCfg)

	hubCfg := hub.DefaultConfig()
	if raw := os.Getenv("BROADCAST_EVERY_TICKS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.BroadcastEvery = value
		} else {
			telemetryLogger.Printf("invalid BROADCAST_EVERY_TICKS=%q: %v", raw, err)
		}
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	archiveDir := cfg.ArchiveDir
	if raw := os.Getenv("PINGACHA_ARCHIVE_DIR"); raw != "" {
		archiveDir = raw
	}
	var store *archive.Store
	if archiveDir != "" {
		store, err = archive.Open(archive.Config{Dir: archiveDir}, telemetryLogger, metrics)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				telemetryLogger.Printf("failed to close archive: %v", cerr)
			}
		}()
		telemetryLogger.Printf("archiving rounds under %s", archiveDir)
	}

	h := hub.New(hubCfg, core, store)
	go h.Run()
	defer h.Stop()

	clientDir := cfg.ClientDir
	if raw := os.Getenv("PINGACHA_CLIENT_DIR"); raw != "" {
		clientDir = raw
	}

	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		Metrics:       metrics,
		Archive:       store,
		Observability: observabilityCfg,
		ClientDir:     clientDir,
	})

	addr := cfg.Addr
	if raw := os.Getenv("PINGACHA_ADDR"); raw != "" {
		addr = raw
	}
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			telemetryLogger.Printf("http shutdown: %v", err)
		}
	}()

	telemetryLogger.Printf("server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
