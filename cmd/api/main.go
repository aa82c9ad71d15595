package main

import (
    "bufio"
    "errors"
    "log"
    "net"
    "net/http"
    "os"
    "strconv"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "coldroute/internal/api"
    "coldroute/internal/metrics"
)

func main() {
    if err := godotenv.Load(); err != nil {
        log.Println("no .env file found, relying on environment")
    }

    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Planning
    mux.HandleFunc("/v1/plan/batch", srvDeps.PlanBatchHandler)
    mux.HandleFunc("/v1/plan/order", srvDeps.PlanOrderHandler)

    // Orders
    mux.HandleFunc("/v1/orders", srvDeps.OrdersHandler)
    mux.HandleFunc("/v1/orders/", srvDeps.OrderByIDHandler)

    // Fleet and product specs
    mux.HandleFunc("/v1/fleet", srvDeps.FleetHandler)
    mux.HandleFunc("/v1/products", srvDeps.ProductsHandler)
    mux.HandleFunc("/v1/products/", srvDeps.ProductByVariantHandler)

    // Jobs, including the live stream at /v1/jobs/stream
    mux.HandleFunc("/v1/jobs", srvDeps.JobsHandler)
    mux.HandleFunc("/v1/jobs/", srvDeps.JobByIDHandler)

    // Webhook subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Metrics
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    // Start webhook worker
    if srvDeps.Pub != nil {
        worker := srvDeps.NewWebhookWorker()
        worker.Start()
    }
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps the WebSocket upgrade on /v1/jobs/stream working through the
// logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    hj, ok := r.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, errors.New("response writer does not support hijacking")
    }
    return hj.Hijack()
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
