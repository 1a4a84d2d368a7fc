package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/persistence/indexdb"
	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/sim/tuning"
	"lumbercamp.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertRun(runID, worldID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
	RecentAudits(ctx context.Context, actor string, limit int) ([]indexdb.AuditRow, error)
	ActionCounts(ctx context.Context) (map[string]int, error)
	TickDigest(ctx context.Context, tick uint64) (digest string, ok bool, err error)
}

// openRuntimeIndex opens the read-model index for a run. A nil index with a
// nil error means indexing is off.
func openRuntimeIndex(runDir string, disableDB bool, logger logrus.FieldLogger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Info("index backend disabled")
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(runDir, "index", "camp.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", dbPath, err)
		}
		logger.WithField("path", dbPath).Info("index backend: sqlite")
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported LC_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
