// Package observability exposes simulation metrics to Prometheus.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"circuitcraft.ai/internal/persistence/indexdb"
	"circuitcraft.ai/internal/sim/world"
)

const namespace = "circuitcraft"

// WorldSource is the read side of a running world.
type WorldSource interface {
	ID() string
	Metrics() world.WorldMetrics
}

// IndexSource reports index queue health. Optional.
type IndexSource interface {
	Stats() indexdb.Stats
}

// SimCollector bundles the per-tick counters, which it receives as a
// world.TickLogger, and a gauge view sampled from WorldSource at scrape time.
type SimCollector struct {
	gatherer prometheus.Gatherer
	worldID  string

	Ticks          prometheus.Counter
	Edits          *prometheus.CounterVec
	BudgetExceeded prometheus.Counter
	PassLimitHits  prometheus.Counter
	GateEvals      prometheus.Counter
	WireUpdates    prometheus.Counter
	Passes         prometheus.Histogram

	state *stateCollector
}

// NewSimCollector registers metrics against reg, defaulting to the global
// registry when nil.
func NewSimCollector(reg prometheus.Registerer, src WorldSource, idx IndexSource) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	worldID := src.ID()
	labels := prometheus.Labels{"world": worldID}

	c := &SimCollector{gatherer: gatherer, worldID: worldID}
	var err error
	if c.Ticks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "ticks_total",
		Help:        "Ticks completed.",
		ConstLabels: labels,
	}), "ticks_total"); err != nil {
		return nil, err
	}
	if c.Edits, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "edits_total",
		Help:        "Edits applied, labeled by op and result code (empty when accepted).",
		ConstLabels: labels,
	}, []string{"op", "code"}), "edits_total"); err != nil {
		return nil, err
	}
	if c.BudgetExceeded, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "wire_budget_exceeded_total",
		Help:        "Ticks whose wire relaxation hit the node budget and carried work over.",
		ConstLabels: labels,
	}), "wire_budget_exceeded_total"); err != nil {
		return nil, err
	}
	if c.PassLimitHits, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "pass_limit_hit_total",
		Help:        "Ticks that ran out of gate passes with gates still dirty.",
		ConstLabels: labels,
	}), "pass_limit_hit_total"); err != nil {
		return nil, err
	}
	if c.GateEvals, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "gate_evals_total",
		Help:        "Gate evaluations across all passes.",
		ConstLabels: labels,
	}), "gate_evals_total"); err != nil {
		return nil, err
	}
	if c.WireUpdates, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "wire_updates_total",
		Help:        "Wire strength changes.",
		ConstLabels: labels,
	}), "wire_updates_total"); err != nil {
		return nil, err
	}
	if c.Passes, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "passes_per_tick",
		Help:        "Gate/wire passes needed per tick.",
		Buckets:     []float64{1, 2, 3, 4, 6, 8, 12, 16},
		ConstLabels: labels,
	}), "passes_per_tick"); err != nil {
		return nil, err
	}

	c.state = newStateCollector(src, idx)
	if err := reg.Register(c.state); err != nil {
		return nil, fmt.Errorf("register world state collector: %w", err)
	}
	return c, nil
}

// WriteTick implements world.TickLogger.
func (c *SimCollector) WriteTick(e world.TickLogEntry) error {
	if c == nil {
		return nil
	}
	c.Ticks.Inc()
	c.Passes.Observe(float64(e.Passes))
	c.GateEvals.Add(float64(e.GateEvals))
	c.WireUpdates.Add(float64(e.WireUpdates))
	if e.BudgetExceeded {
		c.BudgetExceeded.Inc()
	}
	if e.PassLimitHit {
		c.PassLimitHits.Inc()
	}
	for _, ed := range e.Edits {
		c.Edits.WithLabelValues(ed.Edit.Op, ed.Code).Inc()
	}
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// stateCollector turns the latest WorldMetrics into gauges on every scrape.
type stateCollector struct {
	src WorldSource
	idx IndexSource

	tick, blocks, wires, gates, actors, observers *prometheus.Desc
	queueDepth, stepMS, wirePending, motors       *prometheus.Desc
	gatesPending, indexQueue, indexDropped        *prometheus.Desc
}

func newStateCollector(src WorldSource, idx IndexSource) *stateCollector {
	labels := prometheus.Labels{"world": src.ID()}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "world", name), help, variable, labels)
	}
	return &stateCollector{
		src:          src,
		idx:          idx,
		tick:         desc("tick", "Current world tick."),
		blocks:       desc("blocks", "Placed blocks."),
		wires:        desc("wires", "Wire segments."),
		gates:        desc("gates", "Gate nodes."),
		actors:       desc("actors", "Connected edit clients."),
		observers:    desc("observers", "Observer sessions."),
		queueDepth:   desc("queue_depth", "Channel backlog depth.", "queue"),
		stepMS:       desc("step_ms", "Last tick step duration in milliseconds."),
		wirePending:  desc("wire_pending", "Wire seeds deferred to the next tick."),
		motors:       desc("driving_motors", "Motors currently driving a mechanical neighbor."),
		gatesPending: desc("gates_pending", "Gates left dirty by the last tick's pass limit."),
		indexQueue:   desc("index_queue_depth", "SQLite index write queue depth."),
		indexDropped: desc("index_dropped_total", "Index rows dropped because the queue was full.", "kind"),
	}
}

func (s *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		s.tick, s.blocks, s.wires, s.gates, s.actors, s.observers,
		s.queueDepth, s.stepMS, s.wirePending, s.motors, s.gatesPending, s.indexQueue, s.indexDropped,
	} {
		ch <- d
	}
}

func (s *stateCollector) Collect(ch chan<- prometheus.Metric) {
	m := s.src.Metrics()
	gauge := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, lv...)
	}
	gauge(s.tick, float64(m.Tick))
	gauge(s.blocks, float64(m.Blocks))
	gauge(s.wires, float64(m.Wires))
	gauge(s.gates, float64(m.Gates))
	gauge(s.actors, float64(m.Actors))
	gauge(s.observers, float64(m.Observers))
	gauge(s.queueDepth, float64(m.QueueDepths.Edits), "edits")
	gauge(s.queueDepth, float64(m.QueueDepths.Join), "join")
	gauge(s.queueDepth, float64(m.QueueDepths.Leave), "leave")
	gauge(s.stepMS, m.StepMS)
	gauge(s.wirePending, float64(m.WirePending))
	gauge(s.motors, float64(m.DrivingMotors))
	gauge(s.gatesPending, float64(m.GatesPending))

	if s.idx == nil {
		return
	}
	st := s.idx.Stats()
	gauge(s.indexQueue, float64(st.QueueDepth))
	ch <- prometheus.MustNewConstMetric(s.indexDropped, prometheus.CounterValue, float64(st.DropTickTotal), "tick")
	ch <- prometheus.MustNewConstMetric(s.indexDropped, prometheus.CounterValue, float64(st.DropSnapshotTotal), "snapshot")
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
