package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick   uint64 `json:"tick"`
	Digest string `json:"digest"`

	Blocks    int `json:"blocks"`
	Wires     int `json:"wires"`
	Gates     int `json:"gates"`
	Actors    int `json:"actors"`
	Observers int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	// Last tick.
	Passes         int  `json:"passes"`
	GateEvals      int  `json:"gate_evals"`
	WireVisited    int  `json:"wire_visited"`
	WireUpdates    int  `json:"wire_updates"`
	WirePending    int  `json:"wire_pending"`
	BudgetExceeded bool `json:"budget_exceeded"`
	GatesPending   int  `json:"gates_pending"`
	PassLimitHit   bool `json:"pass_limit_hit"`
	DrivingMotors  int  `json:"driving_motors"`

	Totals Totals `json:"totals"`
}

type QueueDepths struct {
	Edits int `json:"edits"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// Totals are monotonic counters since the world was created.
type Totals struct {
	Ticks          uint64 `json:"ticks"`
	Passes         uint64 `json:"passes"`
	GateEvals      uint64 `json:"gate_evals"`
	WireUpdates    uint64 `json:"wire_updates"`
	BudgetExceeded uint64 `json:"budget_exceeded"`
	PassLimitHits  uint64 `json:"pass_limit_hits"`
	Edits          uint64 `json:"edits"`
	EditsRejected  uint64 `json:"edits_rejected"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}
