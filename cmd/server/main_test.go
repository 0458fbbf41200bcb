package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/sim/world"
)

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	worldDir := t.TempDir()
	dir := filepath.Join(worldDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"90.snap.zst", "1200.snap.zst", "300.snap.zst", "1300.rollback.snap.zst", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got, want := latestSnapshot(worldDir), filepath.Join(dir, "1200.snap.zst"); got != want {
		t.Fatalf("latestSnapshot = %q, want %q", got, want)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir gave %q", got)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5555":   true,
		"[::1]:80":         true,
		"203.0.113.9:5555": false,
		"not-an-addr":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q) = %v", addr, got)
		}
	}
}

type recordingLogger struct {
	ticks []uint64
	err   error
}

func (r *recordingLogger) WriteTick(e world.TickLogEntry) error {
	r.ticks = append(r.ticks, e.Tick)
	return r.err
}

func TestFanoutTickLogger_ContinuesPastFailures(t *testing.T) {
	failing := &recordingLogger{err: errors.New("disk full")}
	ok := &recordingLogger{}
	f := fanoutTickLogger{log: newTestLogger(), loggers: []world.TickLogger{failing, nil, ok}}
	if err := f.WriteTick(world.TickLogEntry{Tick: 4}); err != nil {
		t.Fatalf("fanout returned %v", err)
	}
	if len(failing.ticks) != 1 || len(ok.ticks) != 1 || ok.ticks[0] != 4 {
		t.Fatalf("failing=%v ok=%v", failing.ticks, ok.ticks)
	}
}

func TestOpenRuntimeIndex_Backends(t *testing.T) {
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, true, newTestLogger())
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("CC_INDEX_BACKEND", "none")
	if idx, err := openRuntimeIndex(dir, false, newTestLogger()); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("CC_INDEX_BACKEND", "d1")
	if _, err := openRuntimeIndex(dir, false, newTestLogger()); err == nil {
		t.Fatalf("unknown backend accepted")
	}

	t.Setenv("CC_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(dir, false, newTestLogger())
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	defer idx.Close()
	if _, err := os.Stat(filepath.Join(dir, "index", "world.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("CC_TEST_FLAG", "")
	if !envBool("CC_TEST_FLAG", true) {
		t.Fatalf("empty should keep default")
	}
	t.Setenv("CC_TEST_FLAG", "false")
	if envBool("CC_TEST_FLAG", true) {
		t.Fatalf("false not parsed")
	}
	t.Setenv("CC_TEST_FLAG", "maybe")
	if envBool("CC_TEST_FLAG", false) {
		t.Fatalf("bad value should keep default")
	}
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
