package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/persistence/indexdb"
	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/tuning"
	"lumbercamp.ai/internal/sim/world"
	"lumbercamp.ai/internal/transport/ws"
)

type fakeIndex struct {
	audits  []indexdb.AuditRow
	actor   string
	digests map[uint64]string
}

func (f *fakeIndex) WriteTick(world.TickLogEntry) error                   { return nil }
func (f *fakeIndex) WriteAudit(world.AuditEntry) error                    { return nil }
func (f *fakeIndex) Close() error                                         { return nil }
func (f *fakeIndex) UpsertRun(string, string, tuning.Tuning) error        { return nil }
func (f *fakeIndex) RecordSnapshot(string, snapshot.SnapshotV1)           {}
func (f *fakeIndex) Stats() indexdb.Stats                                 { return indexdb.Stats{QueueCapacity: 8, DropAuditTotal: 3} }
func (f *fakeIndex) ActionCounts(context.Context) (map[string]int, error) { return map[string]int{"EXTRACT": 2}, nil }

func (f *fakeIndex) TickDigest(_ context.Context, tick uint64) (string, bool, error) {
	d, ok := f.digests[tick]
	return d, ok, nil
}

func (f *fakeIndex) RecentAudits(_ context.Context, actor string, limit int) ([]indexdb.AuditRow, error) {
	f.actor = actor
	if limit < len(f.audits) {
		return f.audits[:limit], nil
	}
	return f.audits, nil
}

func newTestApp(t *testing.T, idx runtimeIndex) *app {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "camp", Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &app{
		worldID:   "camp",
		runID:     "run-1",
		w:         w,
		idx:       idx,
		ws:        ws.NewServer(w, log),
		log:       log,
		adminHTTP: true,
	}
}

func get(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	a := newTestApp(t, nil)
	a.w.StepOnce(nil)
	h := a.routes()

	if rec := get(t, h, "/healthz", ""); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec := get(t, h, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{
		`lumbercamp_world_tick{world="camp"} 1`,
		`lumbercamp_workers{world="camp",state="total"} 1`,
		`lumbercamp_wood{world="camp",where="remaining"} 100`,
		`lumbercamp_ws_sessions_total{world="camp"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "lumbercamp_index_") {
		t.Fatalf("index metrics rendered without an index")
	}

	rec = get(t, h, "/v1/state", "")
	if rec.Code != 200 {
		t.Fatalf("state: %d", rec.Code)
	}
	var st protocol.StateMsg
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Type != protocol.TypeState || len(st.Workers) != 1 || st.Home.WoodStored != 0 {
		t.Fatalf("state frame: %+v", st)
	}

	rec = get(t, h, "/v1/schemas/cmd", "")
	if rec.Code != 200 || !json.Valid(rec.Body.Bytes()) {
		t.Fatalf("cmd schema: %d", rec.Code)
	}
	if rec := get(t, h, "/v1/schemas/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown schema: %d", rec.Code)
	}
}

func TestRoutes_AdminIsLoopbackOnly(t *testing.T) {
	h := newTestApp(t, nil).routes()

	if rec := get(t, h, "/admin/v1/state", "192.0.2.10:4000"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin: %d", rec.Code)
	}
	rec := get(t, h, "/admin/v1/state", "127.0.0.1:4000")
	if rec.Code != 200 {
		t.Fatalf("local admin: %d", rec.Code)
	}
	var resp struct {
		WorldID string `json:"world_id"`
		RunID   string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.RunID != "run-1" {
		t.Fatalf("admin state: %v %+v", err, resp)
	}

	if rec := get(t, h, "/admin/v1/audits", "[::1]:4000"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("audits without index: %d", rec.Code)
	}
	if rec := get(t, h, "/admin/v1/snapshot", "127.0.0.1:4000"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("snapshot via GET: %d", rec.Code)
	}
}

func TestRoutes_AdminAuditsAndIndexMetrics(t *testing.T) {
	idx := &fakeIndex{audits: []indexdb.AuditRow{
		{Tick: 9, Actor: "W1", Action: "DEPOSIT", Amount: 5},
		{Tick: 4, Actor: "W1", Action: "EXTRACT", NodeID: "N1", Amount: 1},
	}}
	h := newTestApp(t, idx).routes()

	rec := get(t, h, "/admin/v1/audits?actor=W1&limit=1", "127.0.0.1:4000")
	if rec.Code != 200 {
		t.Fatalf("audits: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Audits []indexdb.AuditRow `json:"audits"`
		Counts map[string]int     `json:"counts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Audits) != 1 || resp.Audits[0].Action != "DEPOSIT" || resp.Counts["EXTRACT"] != 2 {
		t.Fatalf("audits resp: %+v", resp)
	}
	if idx.actor != "W1" {
		t.Fatalf("actor filter = %q", idx.actor)
	}
	if rec := get(t, h, "/admin/v1/audits?limit=x", "127.0.0.1:4000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rec.Code)
	}

	body := get(t, h, "/metrics", "").Body.String()
	if !strings.Contains(body, `lumbercamp_index_dropped_total{world="camp",kind="audit"} 3`) {
		t.Fatalf("index metrics missing:\n%s", body)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("LC_TEST_BOOL", "yes")
	t.Setenv("LC_TEST_INT", "12")
	t.Setenv("LC_TEST_BAD", "twelve")
	if !envBool("LC_TEST_BOOL", false) || envBool("LC_TEST_MISSING", false) {
		t.Fatalf("envBool")
	}
	if envInt("LC_TEST_INT", 1) != 12 || envInt("LC_TEST_BAD", 7) != 7 {
		t.Fatalf("envInt")
	}
	if !isLoopbackRemote("127.0.0.1:80") || !isLoopbackRemote("[::1]:80") || isLoopbackRemote("10.0.0.1:80") {
		t.Fatalf("isLoopbackRemote")
	}
}

func TestRoutes_AdminDigest(t *testing.T) {
	const local = "127.0.0.1:4000"
	if rec := get(t, newTestApp(t, nil).routes(), "/admin/v1/digest?tick=1", local); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no index: %d", rec.Code)
	}

	h := newTestApp(t, &fakeIndex{digests: map[uint64]string{7: "d7"}}).routes()
	rec := get(t, h, "/admin/v1/digest?tick=7", local)
	if rec.Code != 200 {
		t.Fatalf("digest: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Tick   uint64 `json:"tick"`
		Digest string `json:"digest"`
		RunID  string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tick != 7 || resp.Digest != "d7" || resp.RunID != "run-1" {
		t.Fatalf("digest resp: %+v", resp)
	}

	if rec := get(t, h, "/admin/v1/digest?tick=8", local); rec.Code != http.StatusNotFound {
		t.Fatalf("missing tick: %d", rec.Code)
	}
	if rec := get(t, h, "/admin/v1/digest?tick=-1", local); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tick: %d", rec.Code)
	}
	if rec := get(t, h, "/admin/v1/digest?tick=7", "10.0.0.2:5000"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote: %d", rec.Code)
	}
}
