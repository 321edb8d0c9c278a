// Package net exposes the HTTP surface around the hub: health and
// diagnostics probes, the sealed gacha result, operator reset, archived
// round history, the layout schema document, and the websocket upgrade.
package net

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"pinball-gacha/server/internal/archive"
	"pinball-gacha/server/internal/hub"
	"pinball-gacha/server/internal/layout"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/net/intake"
	"pinball-gacha/server/internal/net/proto"
	"pinball-gacha/server/internal/net/ws"
	"pinball-gacha/server/internal/observability"
	"pinball-gacha/server/internal/session"
	"pinball-gacha/server/internal/telemetry"
)

// HTTPHandlerConfig carries the collaborators for the HTTP surface.
// Archive may be nil when persistence is disabled.
type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Metrics       *telemetry.Counters
	Archive       *archive.Store
	Observability observability.Config
	ClientDir     string
}

// NewHTTPHandler assembles the router. Every mutation is staged through the
// hub's command queue so the loop goroutine stays the only state writer.
func NewHTTPHandler(h *hub.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, h.Diagnostics())
	})

	mux.HandleFunc("/session/result", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		snap := h.LatestSnapshot()
		if snap.Result == nil {
			httpError(w, "no settled result", nethttp.StatusNotFound)
			return
		}
		data, err := proto.EncodeResult(snap.Session, *snap.Result)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/session/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		// An optional body restarts the round with a fresh roster once the
		// reset lands, so operators can rerun a draw in one call. The roster
		// uses the wire format: one blob split on newlines and commas.
		type resetRequest struct {
			Participants string `json:"participants"`
			Seed         *int64 `json:"seed"`
		}
		var req resetRequest
		if r.Body != nil {
			defer r.Body.Close()
			decoder := json.NewDecoder(r.Body)
			if err := decoder.Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}

		names := session.ParseParticipants(req.Participants)
		if strings.TrimSpace(req.Participants) != "" && len(names) == 0 {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}

		stage := intake.CommandContext{Queue: h, Tick: h.Tick}
		if _, ok, reason := intake.StageCommand(stage, "http", proto.ClientMessage{Type: proto.TypeReset}); !ok {
			httpError(w, reason, nethttp.StatusServiceUnavailable)
			return
		}
		if len(names) > 0 {
			start := proto.ClientMessage{Type: proto.TypeStart, Participants: req.Participants, Seed: req.Seed}
			if _, ok, reason := intake.StageCommand(stage, "http", start); !ok {
				httpError(w, reason, nethttp.StatusServiceUnavailable)
				return
			}
		}

		writeJSON(w, struct {
			Status       string   `json:"status"`
			Tick         uint64   `json:"tick"`
			Participants []string `json:"participants,omitempty"`
		}{Status: "ok", Tick: h.Tick(), Participants: names})
	})

	mux.HandleFunc("/session/history", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.Archive == nil {
			httpError(w, "archive disabled", nethttp.StatusNotFound)
			return
		}

		if id := r.URL.Query().Get("id"); id != "" {
			arrivals, err := cfg.Archive.ArrivalsFor(r.Context(), id)
			if err != nil {
				httpError(w, "archive query failed", nethttp.StatusInternalServerError)
				return
			}
			if arrivals == nil {
				arrivals = []ledger.Arrival{}
			}
			writeJSON(w, struct {
				Session  string           `json:"session"`
				Arrivals []ledger.Arrival `json:"arrivals"`
			}{Session: id, Arrivals: arrivals})
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				httpError(w, "invalid limit", nethttp.StatusBadRequest)
				return
			}
			limit = parsed
		}
		records, err := cfg.Archive.Recent(r.Context(), limit)
		if err != nil {
			httpError(w, "archive query failed", nethttp.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []archive.SessionRecord{}
		}
		writeJSON(w, struct {
			Sessions []archive.SessionRecord `json:"sessions"`
		}{Sessions: records})
	})

	schemaDoc, schemaErr := layout.SchemaJSON()
	if schemaErr != nil && cfg.Logger != nil {
		cfg.Logger.Printf("layout schema unavailable: %v", schemaErr)
	}
	mux.HandleFunc("/layout/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if schemaErr != nil {
			httpError(w, "schema unavailable", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(schemaDoc)
	})

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	wsHandler := ws.NewHandler(h, ws.HandlerConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	mux.HandleFunc("/ws", wsHandler.Handle)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
