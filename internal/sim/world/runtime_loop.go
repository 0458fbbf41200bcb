package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.WithField("tick_rate_hz", w.cfg.TickRateHz).Info("world loop started")
	defer w.log.Info("world loop stopped")

	var pendingEdits []EditEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.bootstrap:
			req.resp <- w.Bootstrap()
		case env := <-w.edits:
			pendingEdits = append(pendingEdits, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingEdits)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingEdits = pendingEdits[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, edits []EditEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, edits)
	return tick, w.lastDigest
}

// sendLatest enqueues b, dropping the oldest queued message if ch is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
