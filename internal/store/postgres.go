package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "coldroute/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Migrate applies the schema. Idempotent; intended as a dev helper, real
// deployments run migrations out of band.
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.ExecContext(ctx, schema)
    return err
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    variant TEXT NOT NULL,
    quantity_kg INT NOT NULL,
    pickup_lat DOUBLE PRECISION, pickup_lng DOUBLE PRECISION, pickup_city TEXT,
    drop_lat DOUBLE PRECISION, drop_lng DOUBLE PRECISION, drop_city TEXT,
    pickup_date TEXT NOT NULL,
    status TEXT NOT NULL,
    job_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_status_date ON orders(status, pickup_date);
CREATE TABLE IF NOT EXISTS fleet (
    id TEXT PRIMARY KEY,
    class TEXT NOT NULL,
    capacity_kg INT NOT NULL,
    lat DOUBLE PRECISION NOT NULL, lng DOUBLE PRECISION NOT NULL,
    status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vehicle_bookings (
    vehicle_id TEXT NOT NULL,
    plan_date TEXT NOT NULL,
    PRIMARY KEY (vehicle_id, plan_date)
);
CREATE TABLE IF NOT EXISTS product_specs (
    variant TEXT PRIMARY KEY,
    optimal_temp_c DOUBLE PRECISION NOT NULL,
    max_safe_temp_c DOUBLE PRECISION NOT NULL,
    max_uncooled_km DOUBLE PRECISION NOT NULL,
    force_refrigeration BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS transport_jobs (
    id TEXT PRIMARY KEY,
    plan_date TEXT NOT NULL,
    vehicle_id TEXT NOT NULL,
    vehicle_class TEXT NOT NULL,
    total_weight_kg INT NOT NULL,
    stops JSONB NOT NULL,
    status TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    events JSONB NOT NULL,
    secret TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id TEXT PRIMARY KEY,
    subscription_id TEXT,
    event_type TEXT NOT NULL,
    url TEXT NOT NULL,
    secret TEXT NOT NULL DEFAULT '',
    payload BYTEA NOT NULL,
    status TEXT NOT NULL,
    attempts INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_error TEXT NOT NULL DEFAULT '',
    response_code INT NOT NULL DEFAULT 0,
    latency_ms INT NOT NULL DEFAULT 0
);
`

func (p *Postgres) CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func() { _ = tx.Rollback() }()

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
        var plat, plng, dlat, dlng any
        if o.Pickup != nil { plat, plng = o.Pickup.Lat, o.Pickup.Lng }
        if o.Drop != nil { dlat, dlng = o.Drop.Lat, o.Drop.Lng }
        _, err = tx.ExecContext(ctx, `INSERT INTO orders (id, variant, quantity_kg, pickup_lat, pickup_lng, pickup_city, drop_lat, drop_lng, drop_city, pickup_date, status) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
            o.ID, o.Variant, o.QuantityKg, plat, plng, nullIfEmpty(o.PickupCity), dlat, dlng, nullIfEmpty(o.DropCity), o.PickupDate, o.Status)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

const orderCols = `id, variant, quantity_kg, pickup_lat, pickup_lng, pickup_city, drop_lat, drop_lng, drop_city, pickup_date, status, job_id`

func scanOrder(sc interface{ Scan(...any) error }) (model.Order, error) {
    var o model.Order
    var plat, plng, dlat, dlng sql.NullFloat64
    var pcity, dcity, jobID sql.NullString
    if err := sc.Scan(&o.ID, &o.Variant, &o.QuantityKg, &plat, &plng, &pcity, &dlat, &dlng, &dcity, &o.PickupDate, &o.Status, &jobID); err != nil {
        return model.Order{}, err
    }
    if plat.Valid && plng.Valid { o.Pickup = &model.GeoPoint{Lat: plat.Float64, Lng: plng.Float64} }
    if dlat.Valid && dlng.Valid { o.Drop = &model.GeoPoint{Lat: dlat.Float64, Lng: dlng.Float64} }
    o.PickupCity = pcity.String
    o.DropCity = dcity.String
    o.JobID = jobID.String
    return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, status, date string, limit int) ([]model.Order, error) {
    if limit <= 0 || limit > 1000 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders WHERE ($1 = '' OR status=$1) AND ($2 = '' OR pickup_date=$2) ORDER BY id LIMIT $3`, status, date, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Order{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    return out, rows.Err()
}

func (p *Postgres) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
    o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, orderID))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) GetPendingOrders(ctx context.Context, date string) ([]model.Order, error) {
    return p.ListOrders(ctx, model.OrderPending, date, 1000)
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, orderID, status, jobID string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$2, job_id=COALESCE(NULLIF($3,''), job_id) WHERE id=$1`, orderID, status, jobID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()
    for _, v := range vehicles {
        if v.ID == "" { v.ID = uuid.New().String() }
        if v.Status == "" { v.Status = model.VehicleAvailable }
        _, err = tx.ExecContext(ctx, `INSERT INTO fleet (id, class, capacity_kg, lat, lng, status) VALUES ($1,$2,$3,$4,$5,$6)
            ON CONFLICT (id) DO UPDATE SET class=EXCLUDED.class, capacity_kg=EXCLUDED.capacity_kg, lat=EXCLUDED.lat, lng=EXCLUDED.lng, status=EXCLUDED.status`,
            v.ID, string(v.Class), v.CapacityKg, v.Location.Lat, v.Location.Lng, v.Status)
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *Postgres) ListFleet(ctx context.Context) ([]model.Vehicle, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, class, capacity_kg, lat, lng, status FROM fleet ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanVehicles(rows)
}

func (p *Postgres) GetAvailableFleet(ctx context.Context, date string) ([]model.Vehicle, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT f.id, f.class, f.capacity_kg, f.lat, f.lng, f.status FROM fleet f
        WHERE f.status=$1 AND NOT EXISTS (SELECT 1 FROM vehicle_bookings b WHERE b.vehicle_id=f.id AND b.plan_date=$2)
        ORDER BY f.id`, model.VehicleAvailable, date)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanVehicles(rows)
}

func scanVehicles(rows *sql.Rows) ([]model.Vehicle, error) {
    out := []model.Vehicle{}
    for rows.Next() {
        var v model.Vehicle
        var class string
        if err := rows.Scan(&v.ID, &class, &v.CapacityKg, &v.Location.Lat, &v.Location.Lng, &v.Status); err != nil { return nil, err }
        v.Class = model.VehicleClass(class)
        out = append(out, v)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkVehicleBooked(ctx context.Context, vehicleID, date string) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO vehicle_bookings (vehicle_id, plan_date) VALUES ($1,$2) ON CONFLICT DO NOTHING`, vehicleID, date)
    return err
}

func (p *Postgres) UpsertProductSpecs(ctx context.Context, specs []model.ProductSpec) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()
    for _, s := range specs {
        _, err = tx.ExecContext(ctx, `INSERT INTO product_specs (variant, optimal_temp_c, max_safe_temp_c, max_uncooled_km, force_refrigeration) VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (variant) DO UPDATE SET optimal_temp_c=EXCLUDED.optimal_temp_c, max_safe_temp_c=EXCLUDED.max_safe_temp_c, max_uncooled_km=EXCLUDED.max_uncooled_km, force_refrigeration=EXCLUDED.force_refrigeration`,
            s.Variant, s.OptimalTempC, s.MaxSafeTempC, s.MaxUncooledKm, s.ForceRefrigeration)
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *Postgres) GetProductSpec(ctx context.Context, variant string) (model.ProductSpec, error) {
    var s model.ProductSpec
    err := p.db.QueryRowContext(ctx, `SELECT variant, optimal_temp_c, max_safe_temp_c, max_uncooled_km, force_refrigeration FROM product_specs WHERE variant=$1`, variant).
        Scan(&s.Variant, &s.OptimalTempC, &s.MaxSafeTempC, &s.MaxUncooledKm, &s.ForceRefrigeration)
    if errors.Is(err, sql.ErrNoRows) { return model.ProductSpec{}, ErrNotFound }
    return s, err
}

func (p *Postgres) SaveJob(ctx context.Context, job model.TransportJob) error {
    stops, err := json.Marshal(job.Stops)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO transport_jobs (id, plan_date, vehicle_id, vehicle_class, total_weight_kg, stops, status, reason) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, stops=EXCLUDED.stops, total_weight_kg=EXCLUDED.total_weight_kg, reason=EXCLUDED.reason`,
        job.ID, job.PlanDate, job.VehicleID, string(job.VehicleClass), job.TotalWeightKg, stops, job.Status, job.Reason)
    return err
}

func (p *Postgres) GetJob(ctx context.Context, jobID string) (model.TransportJob, error) {
    j, err := scanJob(p.db.QueryRowContext(ctx, `SELECT id, plan_date, vehicle_id, vehicle_class, total_weight_kg, stops, status, reason FROM transport_jobs WHERE id=$1`, jobID))
    if errors.Is(err, sql.ErrNoRows) { return model.TransportJob{}, ErrNotFound }
    return j, err
}

func (p *Postgres) ListJobs(ctx context.Context, date string, limit int) ([]model.TransportJob, error) {
    if limit <= 0 || limit > 1000 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id, plan_date, vehicle_id, vehicle_class, total_weight_kg, stops, status, reason FROM transport_jobs WHERE ($1 = '' OR plan_date=$1) ORDER BY id LIMIT $2`, date, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.TransportJob{}
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, err }
        out = append(out, j)
    }
    return out, rows.Err()
}

func scanJob(sc interface{ Scan(...any) error }) (model.TransportJob, error) {
    var j model.TransportJob
    var class string
    var stops []byte
    if err := sc.Scan(&j.ID, &j.PlanDate, &j.VehicleID, &class, &j.TotalWeightKg, &stops, &j.Status, &j.Reason); err != nil {
        return model.TransportJob{}, err
    }
    j.VehicleClass = model.VehicleClass(class)
    if err := json.Unmarshal(stops, &j.Stops); err != nil { return model.TransportJob{}, err }
    return j, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
    events, err := json.Marshal(s.Events)
    if err != nil { return model.Subscription{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, s.ID, s.URL, events, s.Secret)
    if err != nil { return model.Subscription{}, err }
    return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, limit int) ([]model.Subscription, error) {
    if limit <= 0 || limit > 1000 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions ORDER BY id LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE events @> to_jsonb(ARRAY[$1]::text[])`, eventType)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
    var s model.Subscription
    var events []byte
    if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return model.Subscription{}, err }
    if err := json.Unmarshal(events, &s.Events); err != nil { return model.Subscription{}, err }
    return s, nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status) VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
        id, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT id, COALESCE(subscription_id,''), event_type, url, secret, payload, status, attempts FROM webhook_deliveries
        WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
        return err
    }
    next := time.Now().Add(time.Minute)
    if nextAttemptAt != nil { next = *nextAttemptAt }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, next_attempt_at=$2, last_error=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
        id, next, lastError, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
        id, lastError, responseCode, latencyMs)
    return err
}

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}
