package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/persistence/archive"
	persistlog "lumbercamp.ai/internal/persistence/log"
	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/tuning"
	"lumbercamp.ai/internal/sim/world"
	"lumbercamp.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "camp", "world id")
		seed       = flag.Int64("seed", 0, "world seed (0 keeps the tuning seed)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		runID      = flag.String("run", "", "run id (default: random)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read index")
		logLevel   = flag.String("log_level", "info", "log level (debug|info|warn|error)")
		logJSON    = flag.Bool("log_json", false, "log as JSON")
	)
	flag.Parse()

	logger := newLogger(*logLevel, *logJSON)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Fatal("load tuning")
		}
		logger.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	rid := strings.TrimSpace(*runID)
	if rid == "" {
		rid = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, *worldID, rid)
	log := logger.WithFields(logrus.Fields{"world": *worldID, "run": rid})

	meta := archive.RunMeta{
		RunID:           rid,
		WorldID:         *worldID,
		ProtocolVersion: protocol.Version,
		StartedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		Tuning:          tune,
	}
	if err := archive.WriteRunMeta(runDir, meta); err != nil {
		log.WithError(err).Fatal("write run meta")
	}

	w, err := world.New(world.WorldConfig{ID: *worldID, Tuning: tune})
	if err != nil {
		log.WithError(err).Fatal("world")
	}
	w.SetLogger(logger)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(runDir, *disableDB, log)
	if err != nil {
		log.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertRun(rid, *worldID, tune); err != nil {
			log.WithError(err).Warn("index backend: upsert run")
		}
	}

	tickLog := persistlog.NewTickLogger(runDir)
	auditLog := persistlog.NewAuditLogger(runDir)
	defer tickLog.Close()
	defer auditLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetAuditLogger(auditLog)
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go writeSnapshots(ctx, runDir, snapCh, idx, log)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("world stopped")
		}
	}()

	a := &app{
		worldID:   *worldID,
		runID:     rid,
		w:         w,
		idx:       idx,
		ws:        ws.NewServer(w, logger),
		log:       log,
		adminHTTP: envBool("LC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		pprofHTTP: envBool("LC_ENABLE_PPROF_HTTP", false),
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithFields(logrus.Fields{"addr": *addr, "dir": runDir, "seed": tune.Seed}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("ListenAndServe")
	}
	cancel()
	<-worldDone
	log.WithField("tick", w.CurrentTick()).Info("stopped")
}

// writeSnapshots drains the world's snapshot sink: file first, then the index
// row, then the one-time depletion archive.
func writeSnapshots(ctx context.Context, runDir string, snapCh <-chan snapshot.SnapshotV1, idx runtimeIndex, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapCh:
			path := snapshot.PathFor(filepath.Join(runDir, "snapshots"), snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				log.WithError(err).WithField("tick", snap.Header.Tick).Warn("snapshot write")
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			archivedPath, ok, err := archive.ArchiveDepletedSnapshot(runDir, path, snap)
			if err != nil {
				log.WithError(err).Warn("archive depleted snapshot")
			} else if ok {
				log.WithFields(logrus.Fields{"tick": snap.Header.Tick, "path": archivedPath}).Info("camp depleted; snapshot archived")
			}
		}
	}
}

func newLogger(level string, asJSON bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if asJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.WithField("log_level", level).Warn("unknown log level; using info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
