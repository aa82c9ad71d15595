// Package plan holds the batch and single-order orchestrators. A planner run
// is a single serialized pass over the day's pending orders and available
// fleet; all heavy lifting is delegated to the risk, fleet and route packages.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"coldroute/internal/fleet"
	"coldroute/internal/geo"
	"coldroute/internal/geocode"
	"coldroute/internal/metrics"
	"coldroute/internal/model"
	"coldroute/internal/risk"
	"coldroute/internal/route"
	"coldroute/internal/store"
	"coldroute/internal/weather"
)

// ErrUnknownVariant is returned when no product spec exists for an order.
var ErrUnknownVariant = errors.New("unknown product variant")

// ErrMissingCoordinates is returned when neither explicit coordinates nor a
// geocode match exist for an order's endpoints. An order that cannot be placed
// on the map cannot appear in a manifest, so it is never scheduled blind.
var ErrMissingCoordinates = errors.New("coordinates could not be resolved")

// InsufficientCapacityError reports how many kilograms the acceptable fleet
// could not cover.
type InsufficientCapacityError struct {
	ShortageKg int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient fleet capacity: short %d kg", e.ShortageKg)
}

// UnallocatedOrder names an order a pass could not place, with the reason.
type UnallocatedOrder struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// BatchResult is the outcome of one daily batch pass. Jobs and unallocated
// orders together account for every pending order the pass saw.
type BatchResult struct {
	Date              string               `json:"date"`
	Jobs              []model.TransportJob `json:"jobs"`
	UnallocatedOrders []UnallocatedOrder   `json:"unallocatedOrders"`
	Log               []string             `json:"log"`
}

// Planner runs planning passes. The mutex serializes passes so a batch run and
// a concurrent immediate assignment never book the same vehicle.
type Planner struct {
	mu      sync.Mutex
	store   store.Store
	weather weather.Provider
	geocode *geocode.Table
}

func NewPlanner(st store.Store, wp weather.Provider, gc *geocode.Table) *Planner {
	if gc == nil {
		gc = geocode.NewTable()
	}
	return &Planner{store: st, weather: wp, geocode: gc}
}

// PlanDailyBatch groups the date's pending orders by product variant and
// allocates vehicles group by group. Per-group problems (unknown variant,
// capacity shortage) are recorded in the result and never abort the pass;
// store failures do, without rolling back jobs already committed.
func (p *Planner) PlanDailyBatch(ctx context.Context, date string) (BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := BatchResult{Date: date, Jobs: []model.TransportJob{}, UnallocatedOrders: []UnallocatedOrder{}, Log: []string{}}

	orders, err := p.store.GetPendingOrders(ctx, date)
	if err != nil {
		metrics.PlanPasses.WithLabelValues("batch", "error").Inc()
		return res, fmt.Errorf("fetch pending orders: %w", err)
	}
	available, err := p.store.GetAvailableFleet(ctx, date)
	if err != nil {
		metrics.PlanPasses.WithLabelValues("batch", "error").Inc()
		return res, fmt.Errorf("fetch available fleet: %w", err)
	}
	pool := fleet.NewPool(available)
	res.logf("pass start: %d pending orders, %d available vehicles", len(orders), pool.Len())

	// Group by raw variant, preserving first-seen order for determinism.
	groups := map[string][]model.Order{}
	variants := []string{}
	for _, o := range orders {
		if _, ok := groups[o.Variant]; !ok {
			variants = append(variants, o.Variant)
		}
		groups[o.Variant] = append(groups[o.Variant], o)
	}

	totalShortage := 0
	for _, variant := range variants {
		group := groups[variant]

		spec, err := p.store.GetProductSpec(ctx, variant)
		if errors.Is(err, store.ErrNotFound) {
			res.logf("variant %q: no product spec, %d orders skipped", variant, len(group))
			for _, o := range group {
				res.UnallocatedOrders = append(res.UnallocatedOrders, UnallocatedOrder{OrderID: o.ID, Reason: "unknown variant"})
				metrics.UnallocatedOrders.WithLabelValues("unknown_variant").Inc()
			}
			continue
		}
		if err != nil {
			metrics.PlanPasses.WithLabelValues("batch", "error").Inc()
			return res, fmt.Errorf("product spec %q: %w", variant, err)
		}

		for i := range group {
			p.resolveCoordinates(&group[i], &res)
		}
		routable, unroutable := splitRoutable(group)
		for _, o := range unroutable {
			res.logf("order %s: coordinates unresolved, cannot be routed", o.ID)
			res.UnallocatedOrders = append(res.UnallocatedOrders, UnallocatedOrder{OrderID: o.ID, Reason: "missing coordinates"})
			metrics.UnallocatedOrders.WithLabelValues("missing_coordinates").Inc()
		}
		if len(routable) == 0 {
			continue
		}

		// Risk is evaluated once per group against a representative order.
		rep := routable[0]
		dist := geo.Distance(*rep.Pickup, *rep.Drop)
		snap := p.lookupWeather(ctx, date, *rep.Pickup, &res)
		decision := risk.RequiredClass(spec, dist, snap)
		totalKg := 0
		for _, o := range routable {
			totalKg += o.QuantityKg
		}
		res.logf("variant %q: %d orders, %d kg, %.1f km, class %s (%s)", variant, len(routable), totalKg, dist, decision.Class, decision.Reason)

		assignments, shortage := fleet.Allocate(pool, decision.Class, totalKg)
		for i := range assignments {
			assignments[i].Reason = decision.Reason
		}
		leftover := packOrders(routable, assignments)
		if shortage > 0 {
			totalShortage += shortage
			res.logf("variant %q: capacity short by %d kg", variant, shortage)
		}

		for _, a := range assignments {
			if len(a.Orders) == 0 {
				// Committed for aggregate weight but no whole order fit;
				// later groups may still use the vehicle.
				pool.Add(a.Vehicle)
				res.logf("vehicle %s released, no orders fit", a.Vehicle.ID)
				continue
			}
			job, err := p.commitJob(ctx, date, a, true)
			if err != nil {
				metrics.PlanPasses.WithLabelValues("batch", "error").Inc()
				return res, err
			}
			res.Jobs = append(res.Jobs, job)
		}

		for _, o := range leftover {
			if err := p.store.UpdateOrderStatus(ctx, o.ID, model.OrderFailedNoCapacity, ""); err != nil {
				metrics.PlanPasses.WithLabelValues("batch", "error").Inc()
				return res, fmt.Errorf("flag order %s: %w", o.ID, err)
			}
			res.UnallocatedOrders = append(res.UnallocatedOrders, UnallocatedOrder{OrderID: o.ID, Reason: "insufficient capacity"})
			metrics.UnallocatedOrders.WithLabelValues("insufficient_capacity").Inc()
		}
	}

	metrics.FleetShortageKg.Set(float64(totalShortage))
	metrics.PlanPasses.WithLabelValues("batch", "ok").Inc()
	res.logf("pass done: %d jobs, %d unallocated", len(res.Jobs), len(res.UnallocatedOrders))
	return res, nil
}

// PlanSingleOrder assigns one pending order immediately, drawing from the same
// fleet view as the batch path. On a capacity shortage nothing is committed
// and the order is flagged failed_no_capacity.
func (p *Planner) PlanSingleOrder(ctx context.Context, orderID string) (model.TransportJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		metrics.PlanPasses.WithLabelValues("single", "error").Inc()
		return model.TransportJob{}, err
	}
	if o.Status != model.OrderPending {
		metrics.PlanPasses.WithLabelValues("single", "error").Inc()
		return model.TransportJob{}, fmt.Errorf("order %s is %s, not %s", orderID, o.Status, model.OrderPending)
	}

	spec, err := p.store.GetProductSpec(ctx, o.Variant)
	if errors.Is(err, store.ErrNotFound) {
		metrics.PlanPasses.WithLabelValues("single", "unknown_variant").Inc()
		return model.TransportJob{}, fmt.Errorf("variant %q: %w", o.Variant, ErrUnknownVariant)
	}
	if err != nil {
		metrics.PlanPasses.WithLabelValues("single", "error").Inc()
		return model.TransportJob{}, fmt.Errorf("product spec %q: %w", o.Variant, err)
	}

	var scratch BatchResult
	p.resolveCoordinates(&o, &scratch)
	if o.Pickup == nil || o.Drop == nil {
		for _, line := range scratch.Log {
			log.Printf("plan order %s: %s", orderID, line)
		}
		metrics.PlanPasses.WithLabelValues("single", "missing_coordinates").Inc()
		return model.TransportJob{}, fmt.Errorf("order %s: %w", o.ID, ErrMissingCoordinates)
	}
	dist := geo.Distance(*o.Pickup, *o.Drop)
	snap := p.lookupWeather(ctx, o.PickupDate, *o.Pickup, &scratch)
	decision := risk.RequiredClass(spec, dist, snap)
	for _, line := range scratch.Log {
		log.Printf("plan order %s: %s", orderID, line)
	}

	available, err := p.store.GetAvailableFleet(ctx, o.PickupDate)
	if err != nil {
		metrics.PlanPasses.WithLabelValues("single", "error").Inc()
		return model.TransportJob{}, fmt.Errorf("fetch available fleet: %w", err)
	}
	pool := fleet.NewPool(available)
	assignments, shortage := fleet.Allocate(pool, decision.Class, o.QuantityKg)
	if shortage > 0 {
		if err := p.store.UpdateOrderStatus(ctx, o.ID, model.OrderFailedNoCapacity, ""); err != nil {
			return model.TransportJob{}, fmt.Errorf("flag order %s: %w", o.ID, err)
		}
		metrics.UnallocatedOrders.WithLabelValues("insufficient_capacity").Inc()
		metrics.PlanPasses.WithLabelValues("single", "insufficient_capacity").Inc()
		return model.TransportJob{}, &InsufficientCapacityError{ShortageKg: shortage}
	}

	// A single order may span several vehicles; the order links to the first
	// job, which carries the full pickup/drop route.
	var first model.TransportJob
	for i := range assignments {
		assignments[i].Orders = []model.Order{o}
		assignments[i].Reason = decision.Reason
		job, err := p.commitJob(ctx, o.PickupDate, assignments[i], i == 0)
		if err != nil {
			metrics.PlanPasses.WithLabelValues("single", "error").Inc()
			return model.TransportJob{}, err
		}
		if i == 0 {
			first = job
		}
	}
	metrics.PlanPasses.WithLabelValues("single", "ok").Inc()
	return first, nil
}

// commitJob routes an assignment, persists the job and books the vehicle.
// With link set, the covered orders are flipped to assigned and tied to the
// job; the single-order path links only its first job.
func (p *Planner) commitJob(ctx context.Context, date string, a model.Assignment, link bool) (model.TransportJob, error) {
	stops := route.Plan(a.Vehicle.Location, a.Orders)
	job := model.TransportJob{
		ID:            uuid.New().String(),
		PlanDate:      date,
		VehicleID:     a.Vehicle.ID,
		VehicleClass:  a.Vehicle.Class,
		TotalWeightKg: a.LoadKg,
		Stops:         stops,
		Status:        model.JobScheduled,
		Reason:        a.Reason,
	}
	if err := p.store.SaveJob(ctx, job); err != nil {
		return model.TransportJob{}, fmt.Errorf("save job for vehicle %s: %w", a.Vehicle.ID, err)
	}
	if err := p.store.MarkVehicleBooked(ctx, a.Vehicle.ID, date); err != nil {
		return model.TransportJob{}, fmt.Errorf("book vehicle %s: %w", a.Vehicle.ID, err)
	}
	if link {
		for _, o := range a.Orders {
			if err := p.store.UpdateOrderStatus(ctx, o.ID, model.OrderAssigned, job.ID); err != nil {
				return model.TransportJob{}, fmt.Errorf("assign order %s: %w", o.ID, err)
			}
		}
	}
	metrics.JobsScheduled.WithLabelValues(string(job.VehicleClass)).Inc()
	return job, nil
}

// packOrders distributes whole orders onto the allocated vehicles in input
// order. Returns the orders that did not fit; with a zero shortage this is
// normally empty, but uneven order sizes can still leave a remainder.
func packOrders(group []model.Order, assignments []model.Assignment) []model.Order {
	next := 0
	for i := range assignments {
		capLeft := assignments[i].Vehicle.CapacityKg
		load := 0
		for next < len(group) && group[next].QuantityKg <= capLeft {
			assignments[i].Orders = append(assignments[i].Orders, group[next])
			capLeft -= group[next].QuantityKg
			load += group[next].QuantityKg
			next++
		}
		assignments[i].LoadKg = load
	}
	return group[next:]
}

// resolveCoordinates fills missing pickup/drop points from the city table.
func (p *Planner) resolveCoordinates(o *model.Order, res *BatchResult) {
	if o.Pickup == nil && o.PickupCity != "" {
		if pt, ok := p.geocode.Resolve(o.PickupCity); ok {
			o.Pickup = &pt
		} else {
			res.logf("order %s: pickup city %q not in geocode table", o.ID, o.PickupCity)
		}
	}
	if o.Drop == nil && o.DropCity != "" {
		if pt, ok := p.geocode.Resolve(o.DropCity); ok {
			o.Drop = &pt
		} else {
			res.logf("order %s: drop city %q not in geocode table", o.ID, o.DropCity)
		}
	}
}

// splitRoutable separates orders with both endpoints resolved from those that
// cannot be placed on the map.
func splitRoutable(group []model.Order) (routable, unroutable []model.Order) {
	for _, o := range group {
		if o.Pickup != nil && o.Drop != nil {
			routable = append(routable, o)
		} else {
			unroutable = append(unroutable, o)
		}
	}
	return routable, unroutable
}

func (p *Planner) lookupWeather(ctx context.Context, date string, at model.GeoPoint, res *BatchResult) model.WeatherSnapshot {
	snap, err := p.weather.GetWeather(ctx, date, at)
	if err != nil {
		res.logf("weather lookup failed (%v), using conservative default", err)
		return weather.Conservative()
	}
	return snap
}

func (r *BatchResult) logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}
