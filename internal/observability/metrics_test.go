package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"circuitcraft.ai/internal/persistence/indexdb"
	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/world"
)

type fakeWorld struct{ m world.WorldMetrics }

func (f *fakeWorld) ID() string                  { return "w1" }
func (f *fakeWorld) Metrics() world.WorldMetrics { return f.m }

type fakeIndex struct{ st indexdb.Stats }

func (f fakeIndex) Stats() indexdb.Stats { return f.st }

func TestSimCollector_WriteTickCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg, &fakeWorld{}, nil)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	_ = c.WriteTick(world.TickLogEntry{
		Tick:           1,
		Passes:         3,
		GateEvals:      5,
		WireUpdates:    7,
		BudgetExceeded: true,
		GatesPending:   2,
		PassLimitHit:   true,
		Edits: []world.RecordedEdit{
			{Edit: protocol.Edit{Op: protocol.OpPlace}},
			{Edit: protocol.Edit{Op: protocol.OpToggle}, Code: protocol.ErrCooldown},
			{Edit: protocol.Edit{Op: protocol.OpToggle}, Code: protocol.ErrCooldown},
		},
	})
	_ = c.WriteTick(world.TickLogEntry{Tick: 2, Passes: 1})

	if got := testutil.ToFloat64(c.Ticks); got != 2 {
		t.Fatalf("ticks_total = %v", got)
	}
	if got := testutil.ToFloat64(c.BudgetExceeded); got != 1 {
		t.Fatalf("wire_budget_exceeded_total = %v", got)
	}
	if got := testutil.ToFloat64(c.PassLimitHits); got != 1 {
		t.Fatalf("pass_limit_hit_total = %v", got)
	}
	if got := testutil.ToFloat64(c.GateEvals); got != 5 {
		t.Fatalf("gate_evals_total = %v", got)
	}
	if got := testutil.ToFloat64(c.Edits.WithLabelValues(protocol.OpToggle, protocol.ErrCooldown)); got != 2 {
		t.Fatalf("rejected toggles = %v", got)
	}
	if got := testutil.ToFloat64(c.Edits.WithLabelValues(protocol.OpPlace, "")); got != 1 {
		t.Fatalf("accepted places = %v", got)
	}
}

func TestSimCollector_StateGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeWorld{m: world.WorldMetrics{Tick: 42, Wires: 9, DrivingMotors: 1, GatesPending: 5, QueueDepths: world.QueueDepths{Edits: 3}}}
	idx := fakeIndex{st: indexdb.Stats{QueueDepth: 4, DropTickTotal: 2}}
	if _, err := NewSimCollector(reg, src, idx); err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	expected := `
# HELP circuitcraft_world_tick Current world tick.
# TYPE circuitcraft_world_tick gauge
circuitcraft_world_tick{world="w1"} 42
# HELP circuitcraft_world_wires Wire segments.
# TYPE circuitcraft_world_wires gauge
circuitcraft_world_wires{world="w1"} 9
# HELP circuitcraft_world_gates_pending Gates left dirty by the last tick's pass limit.
# TYPE circuitcraft_world_gates_pending gauge
circuitcraft_world_gates_pending{world="w1"} 5
# HELP circuitcraft_world_queue_depth Channel backlog depth.
# TYPE circuitcraft_world_queue_depth gauge
circuitcraft_world_queue_depth{queue="edits",world="w1"} 3
circuitcraft_world_queue_depth{queue="join",world="w1"} 0
circuitcraft_world_queue_depth{queue="leave",world="w1"} 0
# HELP circuitcraft_world_index_dropped_total Index rows dropped because the queue was full.
# TYPE circuitcraft_world_index_dropped_total counter
circuitcraft_world_index_dropped_total{kind="snapshot",world="w1"} 0
circuitcraft_world_index_dropped_total{kind="tick",world="w1"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"circuitcraft_world_tick", "circuitcraft_world_wires", "circuitcraft_world_gates_pending",
		"circuitcraft_world_queue_depth", "circuitcraft_world_index_dropped_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}

	src.m.Tick = 43
	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP circuitcraft_world_tick Current world tick.
# TYPE circuitcraft_world_tick gauge
circuitcraft_world_tick{world="w1"} 43
`), "circuitcraft_world_tick"); err != nil {
		t.Fatalf("gauge not resampled: %v", err)
	}
}

func TestSimCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg, &fakeWorld{}, nil)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	_ = c.WriteTick(world.TickLogEntry{Passes: 2})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"circuitcraft_ticks_total", "circuitcraft_passes_per_tick_bucket", "circuitcraft_world_step_ms"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
	if strings.Contains(string(body), "index_queue_depth") {
		t.Fatalf("index metrics exported without an index")
	}
}
