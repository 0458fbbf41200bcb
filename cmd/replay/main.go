package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	persistlog "circuitcraft.ai/internal/persistence/log"
	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		worldDir = flag.String("world_dir", "", "world data dir containing events/events-*.jsonl.zst (optional)")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		logLevel = flag.String("log_level", "warn", "log level")
	)
	flag.Parse()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d digest=%s seed=%d blocks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Header.Digest, snap.Seed, len(snap.Blocks))

	if *worldDir == "" {
		return
	}

	res, err := replay(snap, *worldDir, *fromTick, *toTick, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d, last=%d)\n", res.Checked, snap.Header.Tick, res.LastTick)
}

type result struct {
	Checked  uint64
	LastTick uint64
}

// errStop ends a replay early once toTick is passed.
var errStop = errors.New("stop")

// replay resumes snap and steps every logged tick after it, comparing digests.
func replay(snap snapshot.SnapshotV1, worldDir string, fromTick, toTick uint64, log logrus.FieldLogger) (result, error) {
	var res result
	w, err := world.New(world.WorldConfig{ID: snap.Header.WorldID}, log)
	if err != nil {
		return res, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return res, fmt.Errorf("import snapshot: %w", err)
	}

	startTick := w.CurrentTick()
	verifyFrom := max(fromTick, startTick)

	files, err := persistlog.TickLogFiles(worldDir)
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no tick log segments under %s", worldDir)
	}

	step := func(entry world.TickLogEntry) error {
		if entry.Tick < startTick {
			return nil
		}
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick gap: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		joins := make([]world.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, world.JoinRequest{Name: j.Name})
		}
		// Each recorded edit is applied alone; batching does not change
		// the outcome of accepted edits.
		edits := make([]world.EditEnvelope, 0, len(entry.Edits))
		for _, re := range entry.Edits {
			edits = append(edits, world.EditEnvelope{ActorID: re.ActorID, Edits: []protocol.Edit{re.Edit}})
		}

		tick, digest := w.StepOnce(joins, entry.Leaves, edits)
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		res.LastTick = tick
		if tick >= verifyFrom {
			res.Checked++
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
		}
		return nil
	}

	for _, path := range files {
		err := persistlog.ReadTickLog(path, step)
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
