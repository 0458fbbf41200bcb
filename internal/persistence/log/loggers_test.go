package log

import (
	"testing"
	"time"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/world"
)

func TestTickLogger_RoundTripAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	write := func(tick uint64) {
		t.Helper()
		err := l.WriteTick(world.TickLogEntry{
			Tick:   tick,
			Digest: "d",
			Edits: []world.RecordedEdit{{
				ActorID: "A1",
				Edit:    protocol.Edit{Op: protocol.OpToggle, Pos: [3]int{1, 2, 3}},
			}},
		})
		if err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	write(0)
	write(1)
	clock = clock.Add(2 * time.Minute)
	write(2)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening the same hour appends a second frame.
	l2 := NewTickLogger(dir)
	l2.w.now = func() time.Time { return clock }
	if err := l2.WriteTick(world.TickLogEntry{Tick: 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = l2.Close()

	files, err := TickLogFiles(dir)
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("segments = %v", files)
	}
	var ticks []uint64
	for _, f := range files {
		err := ReadTickLog(f, func(e world.TickLogEntry) error {
			ticks = append(ticks, e.Tick)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(ticks) != 4 {
		t.Fatalf("ticks = %v", ticks)
	}
	for i, tick := range ticks {
		if tick != uint64(i) {
			t.Fatalf("ticks = %v", ticks)
		}
	}
}
