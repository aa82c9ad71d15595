package api

import (
    "context"
    "log"
    "os"
    "strings"

    "coldroute/internal/geocode"
    "coldroute/internal/plan"
    "coldroute/internal/store"
    "coldroute/internal/weather"
    "coldroute/internal/webhooks"
)

type Server struct {
    Store   store.Store
    Planner *plan.Planner
    Pub     *webhooks.Publisher
    Broker  EventBroker
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Apply schema (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.Migrate(context.Background()); err != nil {
                log.Printf("migrate: %v", err)
            }
        }
        s = sp
    }

    // Weather provider selection
    var wp weather.Provider
    if url := os.Getenv("WEATHER_URL"); url != "" {
        wp = weather.NewHTTPProvider(url, os.Getenv("WEATHER_API_KEY"))
    } else {
        wp = weather.Static{Snapshot: weather.Conservative()}
    }

    // City table, optionally extended from a YAML file
    gc := geocode.NewTable()
    if path := os.Getenv("GEOCODE_FILE"); path != "" {
        if err := gc.Load(path); err != nil {
            log.Printf("geocode: %v", err)
        }
    }

    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }

    return &Server{
        Store: s,
        Planner: plan.NewPlanner(s, wp, gc),
        Pub: webhooks.NewPublisher(s),
        Broker: broker,
    }, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
