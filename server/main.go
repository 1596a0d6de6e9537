package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hirecraft/jdqueue/server/idempotency"
	"github.com/hirecraft/jdqueue/server/middleware"
	"github.com/hirecraft/jdqueue/server/queue"
	"github.com/hirecraft/jdqueue/server/sink"
	"github.com/hirecraft/jdqueue/server/stream"
	"github.com/hirecraft/jdqueue/server/task"
	"github.com/hirecraft/jdqueue/server/worker"
)

func main() {
	cfg := queue.LoadConfig()

	engine := queue.NewEngine(queue.NewMemoryRepo(), queue.NewRoundRobinScheduler(), cfg, queue.MetricsForBackend(cfg.MetricsBackend))
	svc := queue.NewService(engine, queue.NewEMAStore(cfg.EMAAlpha))

	tasks := task.NewStore()
	hub := task.NewHub()

	resultSink := buildSink()
	streamer := buildStreamer()
	idemStore := buildIdempotencyStore()

	bridge := stream.NewBridge(tasks, hub, resultSink)
	orch := NewOrchestrator(svc, tasks, hub, bridge, streamer)

	runtime := worker.NewRuntime(svc, worker.NewSimExecutor())
	runtime.Start(context.Background())
	defer runtime.Stop()

	lim := NewUserRateLimiter(
		floatEnvOr("QUEUE_RATE_LIMIT", 5),
		intEnvOr("QUEUE_RATE_BURST", 10),
	)

	api := NewAPI(runtime, tasks, hub, orch, idemStore, lim)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/llm/queue/sim-then-generate", api.withIdempotency(api.handleSimThenGenerate))
	mux.HandleFunc("/api/llm/queue/tasks/", api.handleTasks)
	mux.HandleFunc("/api/llm/queue/requests/", api.handleCancelRequest)
	mux.HandleFunc("/api/llm/queue/state", api.handleQueueState)
	mux.HandleFunc("/api/llm/queue/snapshot", api.handleQueueSnapshot)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	log.Printf("jdqueue server listening on %s (global=%d per_user=%d)", addr, cfg.MaxInflightGlobal, cfg.MaxInflightPerUser)
	log.Fatal(http.ListenAndServe(addr, middleware.CORSMiddleware(mux)))
}

// buildSink picks Postgres when DATABASE_URL is set and falls back to the
// in-memory sink otherwise.
func buildSink() sink.Sink {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Printf("DATABASE_URL not set, using in-memory result sink")
		return sink.NewMemorySink()
	}
	pg, err := sink.NewPostgresSink(context.Background(), dsn)
	if err != nil {
		log.Printf("postgres sink unavailable (%v), using in-memory result sink", err)
		return sink.NewMemorySink()
	}
	log.Printf("result sink: postgres")
	return pg
}

// buildStreamer proxies to GENERATE_URL when configured, otherwise the
// built-in template streamer fabricates the JD locally.
func buildStreamer() stream.Streamer {
	url := os.Getenv("GENERATE_URL")
	if url == "" {
		log.Printf("GENERATE_URL not set, using built-in template streamer")
		return stream.NewTemplateStreamer()
	}
	log.Printf("generation proxied to %s", url)
	return stream.NewSSEProxyStreamer(url)
}

func buildIdempotencyStore() idempotency.Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return idempotency.NewMemoryStore()
	}
	db := intEnvOr("REDIS_DB", 0)
	store, err := idempotency.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), db)
	if err != nil {
		log.Printf("redis unavailable (%v), using in-memory idempotency store", err)
		return idempotency.NewMemoryStore()
	}
	log.Printf("idempotency store: redis at %s", addr)
	return store
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func intEnvOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnvOr(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
