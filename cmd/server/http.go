package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/persistence/indexdb"
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/world"
	"lumbercamp.ai/internal/transport/ws"
)

type app struct {
	worldID string
	runID   string
	w       *world.World
	idx     runtimeIndex
	ws      *ws.Server
	log     logrus.FieldLogger

	adminHTTP bool
	pprofHTTP bool
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/v1/state", a.handleState)
	mux.HandleFunc("/v1/schemas/", a.handleSchema)

	if a.adminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", a.loopbackOnly(a.handleAdminState))
		mux.HandleFunc("/admin/v1/snapshot", a.loopbackOnly(a.handleAdminSnapshot))
		mux.HandleFunc("/admin/v1/audits", a.loopbackOnly(a.handleAdminAudits))
		mux.HandleFunc("/admin/v1/digest", a.loopbackOnly(a.handleAdminDigest))
	} else {
		a.log.Info("admin endpoints disabled (LC_ENABLE_ADMIN_HTTP=false)")
	}
	if a.pprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		a.log.Debug("pprof endpoints disabled (LC_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", a.ws.Handler())
	return mux
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	m := a.w.Metrics()
	tick := a.w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}
	wss := wsStats{Active: a.ws.Active(), Sessions: a.ws.Sessions(), Rejected: a.ws.Rejected()}
	var idxStats *indexdb.Stats
	if a.idx != nil {
		s := a.idx.Stats()
		idxStats = &s
	}
	writeMetrics(rw, a.worldID, tick, m, wss, idxStats)
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st := a.w.State()
	if st == nil {
		http.Error(rw, "no state yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(rw, http.StatusOK, st)
}

func (a *app) handleSchema(rw http.ResponseWriter, r *http.Request) {
	typ := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/v1/schemas/"))
	b, ok := protocol.SchemaJSON(typ)
	if !ok {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "application/schema+json")
	_, _ = rw.Write(b)
}

func (a *app) loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *app) handleAdminState(rw http.ResponseWriter, r *http.Request) {
	resp := struct {
		WorldID string             `json:"world_id"`
		RunID   string             `json:"run_id"`
		Tick    uint64             `json:"tick"`
		Metrics world.WorldMetrics `json:"metrics"`
	}{
		WorldID: a.worldID,
		RunID:   a.runID,
		Tick:    a.w.CurrentTick(),
		Metrics: a.w.Metrics(),
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *app) handleAdminSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tick, err := a.w.RequestSnapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
}

func (a *app) handleAdminAudits(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		http.Error(rw, "index disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	actor := strings.TrimSpace(r.URL.Query().Get("actor"))

	rows, err := a.idx.RecentAudits(r.Context(), actor, limit)
	if err != nil {
		a.log.WithError(err).Warn("admin audits query failed")
		http.Error(rw, "query failed", http.StatusInternalServerError)
		return
	}
	counts, err := a.idx.ActionCounts(r.Context())
	if err != nil {
		a.log.WithError(err).Warn("admin audit counts failed")
		http.Error(rw, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"audits": rows, "counts": counts})
}

// handleAdminDigest serves the indexed digest of one tick, for comparing a
// live run against a replay.
func (a *app) handleAdminDigest(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		http.Error(rw, "index disabled", http.StatusServiceUnavailable)
		return
	}
	tick, err := strconv.ParseUint(strings.TrimSpace(r.URL.Query().Get("tick")), 10, 64)
	if err != nil {
		http.Error(rw, "bad tick", http.StatusBadRequest)
		return
	}
	digest, ok, err := a.idx.TickDigest(r.Context(), tick)
	if err != nil {
		a.log.WithError(err).Warn("admin digest query failed")
		http.Error(rw, "query failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(rw, "tick not indexed", http.StatusNotFound)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"world_id": a.worldID, "run_id": a.runID, "tick": tick, "digest": digest})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	enc := json.NewEncoder(rw)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
