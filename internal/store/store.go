package store

import (
    "context"
    "errors"
    "time"

    "coldroute/internal/model"
)

// Store is the persistence interface used by the planner and the API server.
type Store interface {
    // Orders
    CreateOrders(ctx context.Context, orders []model.OrderIn) (created []model.Order, err error)
    ListOrders(ctx context.Context, status, date string, limit int) ([]model.Order, error)
    GetOrder(ctx context.Context, orderID string) (model.Order, error)
    GetPendingOrders(ctx context.Context, date string) ([]model.Order, error)
    UpdateOrderStatus(ctx context.Context, orderID, status, jobID string) error

    // Fleet
    UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) error
    ListFleet(ctx context.Context) ([]model.Vehicle, error)
    GetAvailableFleet(ctx context.Context, date string) ([]model.Vehicle, error)
    MarkVehicleBooked(ctx context.Context, vehicleID, date string) error

    // Product specs
    UpsertProductSpecs(ctx context.Context, specs []model.ProductSpec) error
    GetProductSpec(ctx context.Context, variant string) (model.ProductSpec, error)

    // Transport jobs
    SaveJob(ctx context.Context, job model.TransportJob) error
    GetJob(ctx context.Context, jobID string) (model.TransportJob, error)
    ListJobs(ctx context.Context, date string, limit int) ([]model.TransportJob, error)

    // Webhook subscriptions & deliveries
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    ListSubscriptions(ctx context.Context, limit int) ([]model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one queued outbound notification.
type WebhookDelivery struct {
    ID             string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}

var ErrNotFound = errors.New("not found")
