package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/persistence/indexdb"
	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/sim/tuning"
	"circuitcraft.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	Stats() indexdb.Stats
	UpsertConfig(tune tuning.Tuning, layoutPath string) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir string, disableDB bool, log logrus.FieldLogger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath, log)
	default:
		return nil, fmt.Errorf("unsupported CC_INDEX_BACKEND: %s", backend)
	}
}

// fanoutTickLogger writes each entry to every non-nil logger. Failures are
// logged and do not stop the others.
type fanoutTickLogger struct {
	log     logrus.FieldLogger
	loggers []world.TickLogger
}

func (f fanoutTickLogger) WriteTick(entry world.TickLogEntry) error {
	for _, l := range f.loggers {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil {
			f.log.WithError(err).WithField("tick", entry.Tick).Warn("tick logger")
		}
	}
	return nil
}
