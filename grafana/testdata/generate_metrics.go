// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without using real production data.
//
// The families and label sets mirror what the daemon exports through the
// OTEL Prometheus pipeline, with dots rendered as underscores.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards
var (
	// Capture pipeline metrics
	captureSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minuted_capture_sessions_total",
			Help: "Capture sessions started",
		},
	)
	captureFragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_capture_fragments_total",
			Help: "Finalized transcript fragments, duplicate=true when suppressed",
		},
		[]string{"duplicate"},
	)
	capturePersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minuted_capture_persist_failures_total",
			Help: "Best-effort transcript persistence calls that failed",
		},
	)
	captureSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_capture_task_submissions_total",
			Help: "Task batch submissions to the backend",
		},
		[]string{"outcome"},
	)

	// Extraction pipeline metrics
	extractionFragments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minuted_extraction_fragments_total",
			Help: "Fragments buffered for extraction",
		},
	)
	extractionGateFires = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minuted_extraction_gate_fires_total",
			Help: "Fragments that carried an intent signal",
		},
	)
	extractionHolds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_extraction_holds_total",
			Help: "Extraction attempts held before the model call",
		},
		[]string{"reason"},
	)
	extractionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_extraction_attempts_total",
			Help: "Completed extraction cycles",
		},
		[]string{"outcome"},
	)
	extractionCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minuted_extraction_call_duration_seconds",
			Help:    "LLM extraction call duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"outcome"},
	)

	// Approval queue metrics
	approvalResyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_approval_resyncs_total",
			Help: "Pending-approval resyncs against the backend",
		},
		[]string{"outcome"},
	)
	approvalUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_approval_upserts_total",
			Help: "Pushed pending batches merged into the queue",
		},
		[]string{"replaced"},
	)
	approvalActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_approval_actions_total",
			Help: "Moderator actions by kind and outcome",
		},
		[]string{"action", "outcome"},
	)
	approvalSnoozes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minuted_approval_snoozes_total",
			Help: "Approval queue snoozes",
		},
	)

	// HTTP control surface metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minuted_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minuted_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "endpoint", "status"},
	)
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minuted_http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"method", "endpoint", "status"},
	)
	httpActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minuted_http_active_requests",
			Help: "Number of currently active HTTP requests",
		},
	)
)

var (
	holdReasons     = []string{"no_intent_signal", "min_interval", "call_in_flight", "empty_buffer"}
	attemptOutcomes = []string{"ok", "ok", "ok", "parse_error", "transport_error"}
	actionKinds     = []string{"approve", "approve_all", "reject", "reject_all"}
	endpoints       = []string{
		"/healthz",
		"/readyz",
		"/v1/status",
		"/v1/session/start",
		"/v1/session/stop",
		"/v1/approvals",
		"/v1/approvals/:id/approve",
		"/v1/approvals/:id/reject",
		"/v1/approvals/snooze",
	}
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		// Capture
		captureSessions,
		captureFragments,
		capturePersistFailures,
		captureSubmissions,
		// Extraction
		extractionFragments,
		extractionGateFires,
		extractionHolds,
		extractionAttempts,
		extractionCallDuration,
		// Approval
		approvalResyncs,
		approvalUpserts,
		approvalActions,
		approvalSnoozes,
		// HTTP
		httpRequestsTotal,
		httpRequestDuration,
		httpResponseSize,
		httpActiveRequests,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9464"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'minuted-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func generateSampleData() {
	// A morning's worth of meetings
	captureSessions.Add(float64(rand.Intn(4) + 3))

	// Fragments: mostly unique, a few consecutive duplicates
	for i := 0; i < 400; i++ {
		dup := rand.Float64() < 0.06
		captureFragments.WithLabelValues(boolLabel(dup)).Inc()
		if !dup {
			extractionFragments.Inc()
			if rand.Float64() < 0.3 {
				extractionGateFires.Inc()
			}
		}
	}
	for i := 0; i < 3; i++ {
		capturePersistFailures.Inc()
	}

	// Holds dominate attempts; that is the point of the gates
	for i := 0; i < 120; i++ {
		reason := holdReasons[0]
		if rand.Float64() < 0.4 {
			reason = randomChoice(holdReasons)
		}
		extractionHolds.WithLabelValues(reason).Inc()
	}
	for i := 0; i < 25; i++ {
		outcome := randomChoice(attemptOutcomes)
		extractionAttempts.WithLabelValues(outcome).Inc()
		extractionCallDuration.WithLabelValues(outcome).Observe(0.5 + rand.Float64()*6.0)
		captureSubmissions.WithLabelValues(randomChoice([]string{"ok", "ok", "ok", "error"})).Inc()
	}

	// Approval traffic
	for i := 0; i < 40; i++ {
		approvalResyncs.WithLabelValues(randomChoice([]string{"ok", "ok", "ok", "ok", "error", "forbidden"})).Inc()
	}
	for i := 0; i < 20; i++ {
		approvalUpserts.WithLabelValues(boolLabel(rand.Float64() < 0.2)).Inc()
	}
	for i := 0; i < 30; i++ {
		approvalActions.WithLabelValues(randomChoice(actionKinds), randomChoice([]string{"ok", "ok", "ok", "error"})).Inc()
	}
	approvalSnoozes.Add(float64(rand.Intn(5)))

	// HTTP data
	methods := []string{"GET", "POST"}
	statuses := []string{"200", "200", "200", "400", "409", "500"}
	for i := 0; i < 300; i++ {
		endpoint := randomChoice(endpoints)
		method := randomChoice(methods)
		status := randomChoice(statuses)
		httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(rand.Float64() * 0.2)
		httpResponseSize.WithLabelValues(method, endpoint, status).Observe(float64(rand.Intn(4000) + 100))
	}
	httpActiveRequests.Set(float64(rand.Intn(3)))
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A live meeting produces a steady trickle of fragments
			if rand.Float64() > 0.2 {
				dup := rand.Float64() < 0.06
				captureFragments.WithLabelValues(boolLabel(dup)).Inc()
				if !dup {
					extractionFragments.Inc()
					if rand.Float64() < 0.3 {
						extractionGateFires.Inc()
					}
				}
				extractionHolds.WithLabelValues(randomChoice(holdReasons)).Inc()
			}
			// Occasional extraction cycle and submission
			if rand.Float64() > 0.8 {
				outcome := randomChoice(attemptOutcomes)
				extractionAttempts.WithLabelValues(outcome).Inc()
				extractionCallDuration.WithLabelValues(outcome).Observe(0.5 + rand.Float64()*6.0)
				captureSubmissions.WithLabelValues("ok").Inc()
			}
			// Background resync loop
			if rand.Float64() > 0.5 {
				approvalResyncs.WithLabelValues("ok").Inc()
			}
			// Moderator poking the CLI
			if rand.Float64() > 0.7 {
				approvalActions.WithLabelValues(randomChoice(actionKinds), "ok").Inc()
			}
			// Statusline polling keeps /v1/status warm
			endpoint := "/v1/status"
			if rand.Float64() > 0.6 {
				endpoint = randomChoice(endpoints)
			}
			httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
			httpRequestDuration.WithLabelValues("GET", endpoint, "200").Observe(rand.Float64() * 0.05)
			httpResponseSize.WithLabelValues("GET", endpoint, "200").Observe(float64(rand.Intn(2000) + 100))
			httpActiveRequests.Set(float64(rand.Intn(3)))

			// The odd new session
			if rand.Float64() > 0.95 {
				captureSessions.Inc()
			}
		}
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
