package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "coldroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// It also serves as the test double across the codebase.
type Memory struct {
    mu       sync.Mutex
    orders   map[string]model.Order
    orderIDs []string                       // insertion order, keeps listings stable
    fleet    map[string]model.Vehicle
    fleetIDs []string
    specs    map[string]model.ProductSpec
    jobs     map[string]model.TransportJob
    jobIDs   []string
    bookings map[string]map[string]bool     // date -> vehicleId -> booked
    subs     []model.Subscription
    // Webhook queue state
    deliveries map[string]*memDelivery
    deliveryIDs []string
}

func NewMemory() *Memory {
    return &Memory{
        orders: map[string]model.Order{},
        fleet: map[string]model.Vehicle{},
        specs: map[string]model.ProductSpec{},
        jobs: map[string]model.TransportJob{},
        bookings: map[string]map[string]bool{},
        deliveries: map[string]*memDelivery{},
    }
}

type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
}

func (m *Memory) CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Order, 0, len(orders))
    for _, in := range orders {
        o := model.Order{
            ID: uuid.New().String(),
            Variant: in.Variant,
            QuantityKg: in.QuantityKg,
            Pickup: in.Pickup,
            PickupCity: in.PickupCity,
            Drop: in.Drop,
            DropCity: in.DropCity,
            PickupDate: in.PickupDate,
            Status: model.OrderPending,
        }
        m.orders[o.ID] = o
        m.orderIDs = append(m.orderIDs, o.ID)
        out = append(out, o)
    }
    return out, nil
}

func (m *Memory) ListOrders(ctx context.Context, status, date string, limit int) ([]model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []model.Order{}
    for _, id := range m.orderIDs {
        o := m.orders[id]
        if status != "" && o.Status != status { continue }
        if date != "" && o.PickupDate != date { continue }
        out = append(out, o)
        if len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) GetPendingOrders(ctx context.Context, date string) ([]model.Order, error) {
    return m.ListOrders(ctx, model.OrderPending, date, 10000)
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, orderID, status, jobID string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[orderID]
    if !ok { return ErrNotFound }
    o.Status = status
    if jobID != "" { o.JobID = jobID }
    m.orders[orderID] = o
    return nil
}

func (m *Memory) UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, v := range vehicles {
        if v.ID == "" { v.ID = uuid.New().String() }
        if v.Status == "" { v.Status = model.VehicleAvailable }
        if _, ok := m.fleet[v.ID]; !ok { m.fleetIDs = append(m.fleetIDs, v.ID) }
        m.fleet[v.ID] = v
    }
    return nil
}

func (m *Memory) ListFleet(ctx context.Context) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := make([]model.Vehicle, 0, len(m.fleetIDs))
    for _, id := range m.fleetIDs { out = append(out, m.fleet[id]) }
    return out, nil
}

func (m *Memory) GetAvailableFleet(ctx context.Context, date string) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    booked := m.bookings[date]
    out := []model.Vehicle{}
    for _, id := range m.fleetIDs {
        v := m.fleet[id]
        if v.Status != model.VehicleAvailable { continue }
        if booked != nil && booked[id] { continue }
        out = append(out, v)
    }
    return out, nil
}

func (m *Memory) MarkVehicleBooked(ctx context.Context, vehicleID, date string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.fleet[vehicleID]; !ok { return ErrNotFound }
    if m.bookings[date] == nil { m.bookings[date] = map[string]bool{} }
    m.bookings[date][vehicleID] = true
    return nil
}

func (m *Memory) UpsertProductSpecs(ctx context.Context, specs []model.ProductSpec) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, s := range specs { m.specs[s.Variant] = s }
    return nil
}

func (m *Memory) GetProductSpec(ctx context.Context, variant string) (model.ProductSpec, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.specs[variant]
    if !ok { return model.ProductSpec{}, ErrNotFound }
    return s, nil
}

func (m *Memory) SaveJob(ctx context.Context, job model.TransportJob) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.jobs[job.ID]; !ok { m.jobIDs = append(m.jobIDs, job.ID) }
    m.jobs[job.ID] = job
    return nil
}

func (m *Memory) GetJob(ctx context.Context, jobID string) (model.TransportJob, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[jobID]
    if !ok { return model.TransportJob{}, ErrNotFound }
    return j, nil
}

func (m *Memory) ListJobs(ctx context.Context, date string, limit int) ([]model.TransportJob, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []model.TransportJob{}
    for _, id := range m.jobIDs {
        j := m.jobs[id]
        if date != "" && j.PlanDate != date { continue }
        out = append(out, j)
        if len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs = append(m.subs, s)
    return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, limit int) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > len(m.subs) { limit = len(m.subs) }
    return append([]model.Subscription(nil), m.subs[:limit]...), nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs {
        for _, e := range s.Events {
            if e == eventType { out = append(out, s); break }
        }
    }
    return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveryIDs = append(m.deliveryIDs, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}
