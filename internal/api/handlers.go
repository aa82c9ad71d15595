package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "coldroute/internal/buildinfo"
    "coldroute/internal/model"
    "coldroute/internal/plan"
    "coldroute/internal/store"
)

// PlanBatchHandler handles POST /v1/plan/batch
func (s *Server) PlanBatchHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        Date string `json:"date"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.Date == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid plan request", "date is required", r.URL.Path)
        return
    }
    res, err := s.Planner.PlanDailyBatch(r.Context(), req.Date)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Batch planning failed", err.Error(), r.URL.Path)
        return
    }
    for _, job := range res.Jobs {
        s.Pub.Emit(r.Context(), "job.scheduled", job)
        s.Broker.Publish("jobs", Event{Type: "job.scheduled", Data: map[string]any{"jobId": job.ID, "vehicleId": job.VehicleID, "planDate": job.PlanDate}})
    }
    s.Pub.Emit(r.Context(), "batch.completed", map[string]any{
        "date": req.Date, "jobs": len(res.Jobs), "unallocated": len(res.UnallocatedOrders),
    })
    s.Broker.Publish("jobs", Event{Type: "batch.completed", Data: map[string]any{"date": req.Date, "jobs": len(res.Jobs)}})
    writeJSON(w, http.StatusOK, res)
}

// PlanOrderHandler handles POST /v1/plan/order
func (s *Server) PlanOrderHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        OrderID string `json:"orderId"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.OrderID == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid plan request", "orderId is required", r.URL.Path)
        return
    }
    job, err := s.Planner.PlanSingleOrder(r.Context(), req.OrderID)
    var ice *plan.InsufficientCapacityError
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Order not found", req.OrderID, r.URL.Path)
        return
    case errors.Is(err, plan.ErrUnknownVariant):
        writeProblem(w, http.StatusUnprocessableEntity, "Unknown variant", err.Error(), r.URL.Path)
        return
    case errors.Is(err, plan.ErrMissingCoordinates):
        writeProblem(w, http.StatusUnprocessableEntity, "Missing coordinates", err.Error(), r.URL.Path)
        return
    case errors.As(err, &ice):
        writeJSON(w, http.StatusConflict, map[string]any{"error": "INSUFFICIENT_CAPACITY", "shortageKg": ice.ShortageKg})
        return
    case err != nil:
        writeProblem(w, http.StatusInternalServerError, "Order planning failed", err.Error(), r.URL.Path)
        return
    }
    s.Pub.Emit(r.Context(), "job.scheduled", job)
    s.Broker.Publish("jobs", Event{Type: "job.scheduled", Data: map[string]any{"jobId": job.ID, "vehicleId": job.VehicleID, "planDate": job.PlanDate}})
    writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            Orders []model.OrderIn `json:"orders"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        for i, o := range req.Orders {
            if err := validateOrder(o); err != nil {
                writeProblem(w, http.StatusBadRequest, "Invalid order", fmt.Sprintf("orders[%d]: %v", i, err), r.URL.Path)
                return
            }
        }
        created, err := s.Store.CreateOrders(r.Context(), req.Orders)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, map[string]any{"created": created})
    case http.MethodGet:
        status := r.URL.Query().Get("status")
        date := r.URL.Query().Get("date")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, err := s.Store.ListOrders(r.Context(), status, date, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrderByIDHandler handles GET /v1/orders/{id}
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
    o, err := s.Store.GetOrder(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Order not found", id, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, o)
}

// FleetHandler handles POST/GET /v1/fleet
func (s *Server) FleetHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            Vehicles []model.Vehicle `json:"vehicles"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        for i, v := range req.Vehicles {
            if !v.Class.Valid() {
                writeProblem(w, http.StatusBadRequest, "Invalid vehicle", fmt.Sprintf("vehicles[%d]: unknown class %q", i, v.Class), r.URL.Path)
                return
            }
            if v.CapacityKg <= 0 {
                writeProblem(w, http.StatusBadRequest, "Invalid vehicle", fmt.Sprintf("vehicles[%d]: capacityKg must be positive", i), r.URL.Path)
                return
            }
        }
        if err := s.Store.UpsertVehicles(r.Context(), req.Vehicles); err != nil {
            writeProblem(w, http.StatusInternalServerError, "Upsert fleet failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"upserted": len(req.Vehicles)})
    case http.MethodGet:
        if date := r.URL.Query().Get("availableOn"); date != "" {
            items, err := s.Store.GetAvailableFleet(r.Context(), date)
            if err != nil {
                writeProblem(w, http.StatusInternalServerError, "List fleet failed", err.Error(), r.URL.Path)
                return
            }
            writeJSON(w, http.StatusOK, map[string]any{"items": items})
            return
        }
        items, err := s.Store.ListFleet(r.Context())
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List fleet failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ProductsHandler handles POST /v1/products
func (s *Server) ProductsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        Specs []model.ProductSpec `json:"specs"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    for i, sp := range req.Specs {
        if sp.Variant == "" {
            writeProblem(w, http.StatusBadRequest, "Invalid spec", fmt.Sprintf("specs[%d]: variant is required", i), r.URL.Path)
            return
        }
    }
    if err := s.Store.UpsertProductSpecs(r.Context(), req.Specs); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Upsert specs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"upserted": len(req.Specs)})
}

// ProductByVariantHandler handles GET /v1/products/{variant}
func (s *Server) ProductByVariantHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    variant := strings.TrimPrefix(r.URL.Path, "/v1/products/")
    sp, err := s.Store.GetProductSpec(r.Context(), variant)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Spec not found", variant, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get spec failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, sp)
}

// JobsHandler handles GET /v1/jobs
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    date := r.URL.Query().Get("date")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, err := s.Store.ListJobs(r.Context(), date, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// JobByIDHandler handles GET /v1/jobs/{id}
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
    if id == "stream" {
        s.JobStreamHandler(w, r)
        return
    }
    j, err := s.Store.GetJob(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Job not found", id, r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Get job failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"job": j, "totalDistanceKm": j.TotalDistanceKm()})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        items, err := s.Store.ListSubscriptions(r.Context(), 100)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// HealthHandler handles /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles /readyz; readiness means the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if _, err := s.Store.ListFleet(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func validateOrder(o model.OrderIn) error {
    if o.Variant == "" {
        return errors.New("variant is required")
    }
    if o.QuantityKg <= 0 {
        return errors.New("quantityKg must be positive")
    }
    if o.PickupDate == "" {
        return errors.New("pickupDate is required")
    }
    if o.Pickup == nil && o.PickupCity == "" {
        return errors.New("pickup coordinates or pickupCity required")
    }
    if o.Drop == nil && o.DropCity == "" {
        return errors.New("drop coordinates or dropCity required")
    }
    return nil
}
