package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/observability"
	persistlog "circuitcraft.ai/internal/persistence/log"
	"circuitcraft.ai/internal/persistence/snapshot"
	"circuitcraft.ai/internal/sim/layout"
	"circuitcraft.ai/internal/sim/tuning"
	"circuitcraft.ai/internal/sim/world"
	"circuitcraft.ai/internal/transport/observer"
	"circuitcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "override tuning seed for a fresh world (0 keeps tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "layout to build into a fresh world (optional)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (ticks, edits, snapshots)")
		logLevel   = flag.String("log_level", "info", "log level (debug, info, warn, error)")
		sentryDSN  = flag.String("sentry_dsn", "", "sentry dsn for panic reporting (or set SENTRY_DSN)")
		token      = flag.String("token", "", "shared token required in HELLO (optional)")
		obsRemote  = flag.Bool("observer_remote", false, "serve observer endpoints to non-loopback clients")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	lvl, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("log level: %v", err)
	}
	log.SetLevel(lvl)

	dsn := strings.TrimSpace(*sentryDSN)
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	if dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, ServerName: *worldID}); err != nil {
			log.Fatalf("sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resumed world carries its own.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("load tuning: %v", err)
		}
		log.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB, log)
	if err != nil {
		log.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig(tune, strings.TrimSpace(*layoutPath)); err != nil {
			log.WithError(err).Warn("index: upsert config")
		}
	}

	w, err := world.New(world.ConfigFromTuning(*worldID, tune), log)
	if err != nil {
		log.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			log.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			log.Fatalf("import snapshot: %v", err)
		}
		log.WithFields(logrus.Fields{"snapshot": filepath.Base(snapshotToLoad), "tick": w.CurrentTick()}).Info("resumed")
	} else if lp := strings.TrimSpace(*layoutPath); lp != "" {
		l, err := layout.Load(lp)
		if err != nil {
			log.Fatalf("layout: %v", err)
		}
		if err := w.ApplyLayout(l); err != nil {
			log.Fatalf("layout: %v", err)
		}
		log.WithFields(logrus.Fields{"layout": l.Name, "blocks": w.BlockCount()}).Info("layout built")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var idxStats observability.IndexSource
	if idx != nil {
		idxStats = idx
	}
	metrics, err := observability.NewSimCollector(reg, w, idxStats)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	loggers := []world.TickLogger{tickLog, metrics}
	if idx != nil {
		loggers = append(loggers, idx)
	}
	w.SetTickLogger(fanoutTickLogger{log: log, loggers: loggers})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		defer sentry.Recover()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					log.WithError(err).Error("snapshot write")
					continue
				}
				log.WithFields(logrus.Fields{"tick": snap.Header.Tick, "blocks": len(snap.Blocks)}).Debug("snapshot written")
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Recover(err)
				hub.Flush(5 * time.Second)
				log.Errorf("world loop crashed: %v", err)
				cancel()
			}
		}()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("world stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	enableAdminHTTP := envBool("CC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("CC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			m := w.Metrics()
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Digest  string             `json:"digest"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Tick:    m.Tick,
				Digest:  m.Digest,
				Metrics: m,
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})

		obsSrv := observer.NewServer(w, log)
		obsSrv.AllowRemote = *obsRemote
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		log.Info("admin endpoints disabled (CC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	wsSrv := ws.NewServer(w, log)
	wsSrv.Token = strings.TrimSpace(*token)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone

	// Final snapshot so a restart resumes exactly here.
	last := w.CurrentTick()
	if last > 0 {
		snap := w.ExportSnapshot(last - 1)
		path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			log.WithError(err).Error("final snapshot")
		} else if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
	}
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

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
