package plan

import (
	"context"
	"errors"
	"testing"

	"coldroute/internal/model"
	"coldroute/internal/store"
	"coldroute/internal/weather"
)

const testDate = "2026-07-01"

func mild() weather.Static {
	return weather.Static{Snapshot: model.WeatherSnapshot{TemperatureC: 24, Condition: "clear"}}
}

func pt(lat, lng float64) *model.GeoPoint { return &model.GeoPoint{Lat: lat, Lng: lng} }

func seed(t *testing.T, st store.Store, specs []model.ProductSpec, vehicles []model.Vehicle, orders []model.OrderIn) []model.Order {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertProductSpecs(ctx, specs); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertVehicles(ctx, vehicles); err != nil {
		t.Fatal(err)
	}
	created, err := st.CreateOrders(ctx, orders)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestPlanDailyBatchHappyPath(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000, Location: model.GeoPoint{Lat: 28.6, Lng: 77.2}}},
		[]model.OrderIn{
			{Variant: "tomato", QuantityKg: 300, Pickup: pt(28.61, 77.21), Drop: pt(28.7, 77.3), PickupDate: testDate},
			{Variant: "tomato", QuantityKg: 400, Pickup: pt(28.62, 77.22), Drop: pt(28.8, 77.4), PickupDate: testDate},
		})

	p := NewPlanner(st, mild(), nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("want 1 job, got %d (%v)", len(res.Jobs), res.Log)
	}
	job := res.Jobs[0]
	if job.VehicleID != "V1" || job.TotalWeightKg != 700 || job.Status != model.JobScheduled {
		t.Fatalf("job = %+v", job)
	}
	if job.Reason != "no elevated risk detected" {
		t.Fatalf("job reason = %q", job.Reason)
	}
	if len(job.Stops) != 4 {
		t.Fatalf("want 4 stops, got %d", len(job.Stops))
	}
	if len(res.UnallocatedOrders) != 0 {
		t.Fatalf("unexpected unallocated: %+v", res.UnallocatedOrders)
	}
	for _, o := range created {
		got, err := st.GetOrder(context.Background(), o.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != model.OrderAssigned || got.JobID != job.ID {
			t.Fatalf("order %s = %+v", o.ID, got)
		}
	}
	// The vehicle is booked for the date; a second pass finds nothing to do.
	avail, err := st.GetAvailableFleet(context.Background(), testDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(avail) != 0 {
		t.Fatalf("vehicle not booked: %+v", avail)
	}
}

func TestPlanDailyBatchUnknownVariant(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		nil,
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000}},
		[]model.OrderIn{{Variant: "durian", QuantityKg: 100, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate}})

	p := NewPlanner(st, mild(), nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	if len(res.Jobs) != 0 {
		t.Fatalf("want no jobs, got %+v", res.Jobs)
	}
	if len(res.UnallocatedOrders) != 1 || res.UnallocatedOrders[0].Reason != "unknown variant" {
		t.Fatalf("unallocated = %+v", res.UnallocatedOrders)
	}
	got, _ := st.GetOrder(context.Background(), created[0].ID)
	if got.Status != model.OrderPending {
		t.Fatalf("unknown-variant order should stay pending, got %s", got.Status)
	}
}

func TestPlanDailyBatchCapacityShortageKeepsPartial(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "mango", MaxSafeTempC: 40, MaxUncooledKm: 1000}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 500}},
		[]model.OrderIn{
			{Variant: "mango", QuantityKg: 400, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate},
			{Variant: "mango", QuantityKg: 400, Pickup: pt(1, 1), Drop: pt(1, 3), PickupDate: testDate},
		})

	p := NewPlanner(st, mild(), nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	// First order fits V1, second does not; the committed job is kept.
	if len(res.Jobs) != 1 || res.Jobs[0].TotalWeightKg != 400 {
		t.Fatalf("jobs = %+v", res.Jobs)
	}
	if len(res.UnallocatedOrders) != 1 || res.UnallocatedOrders[0].OrderID != created[1].ID {
		t.Fatalf("unallocated = %+v", res.UnallocatedOrders)
	}
	first, _ := st.GetOrder(context.Background(), created[0].ID)
	second, _ := st.GetOrder(context.Background(), created[1].ID)
	if first.Status != model.OrderAssigned {
		t.Fatalf("covered order rolled back: %+v", first)
	}
	if second.Status != model.OrderFailedNoCapacity {
		t.Fatalf("uncovered order = %+v", second)
	}
}

func TestPlanDailyBatchHeatRequiresRefrigeration(t *testing.T) {
	st := store.NewMemory()
	seed(t, st,
		[]model.ProductSpec{{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 100}},
		[]model.Vehicle{
			{ID: "U1", Class: model.ClassUncovered, CapacityKg: 1000},
			{ID: "R1", Class: model.ClassRefrigerated, CapacityKg: 1000},
		},
		[]model.OrderIn{{Variant: "tomato", QuantityKg: 200, Pickup: pt(1, 1), Drop: pt(1, 1.3), PickupDate: testDate}})

	hot := weather.Static{Snapshot: model.WeatherSnapshot{TemperatureC: 35, Condition: "heatwave"}}
	p := NewPlanner(st, hot, nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	if len(res.Jobs) != 1 || res.Jobs[0].VehicleID != "R1" {
		t.Fatalf("want refrigerated vehicle, got %+v", res.Jobs)
	}
	if res.Jobs[0].Reason != "ambient heat exceeds safe threshold" {
		t.Fatalf("job reason = %q", res.Jobs[0].Reason)
	}
}

func TestPlanDailyBatchWeatherFailureFallsBack(t *testing.T) {
	st := store.NewMemory()
	seed(t, st,
		[]model.ProductSpec{{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000}},
		[]model.OrderIn{{Variant: "tomato", QuantityKg: 100, Pickup: pt(1, 1), Drop: pt(1, 1.5), PickupDate: testDate}})

	broken := weather.Static{Err: errors.New("upstream down")}
	p := NewPlanner(st, broken, nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("pass should survive a weather failure: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("jobs = %+v, log = %v", res.Jobs, res.Log)
	}
}

func TestPlanDailyBatchUnresolvedCityNeverScheduled(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "paneer", MaxSafeTempC: 30, MaxUncooledKm: 40}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassRefrigerated, CapacityKg: 1000}},
		[]model.OrderIn{
			{Variant: "paneer", QuantityKg: 100, PickupCity: "nowhere", DropCity: "elsewhere", PickupDate: testDate},
			{Variant: "paneer", QuantityKg: 200, PickupCity: "delhi", DropCity: "jaipur", PickupDate: testDate},
		})

	p := NewPlanner(st, mild(), nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	if len(res.UnallocatedOrders) != 1 || res.UnallocatedOrders[0].OrderID != created[0].ID || res.UnallocatedOrders[0].Reason != "missing coordinates" {
		t.Fatalf("unallocated = %+v", res.UnallocatedOrders)
	}
	got, _ := st.GetOrder(context.Background(), created[0].ID)
	if got.Status != model.OrderPending || got.JobID != "" {
		t.Fatalf("unresolvable order must stay pending and unlinked, got %+v", got)
	}
	// The resolvable order in the same group still ships, with a full manifest.
	if len(res.Jobs) != 1 {
		t.Fatalf("jobs = %+v, log = %v", res.Jobs, res.Log)
	}
	if len(res.Jobs[0].Stops) != 2 || res.Jobs[0].TotalWeightKg != 200 {
		t.Fatalf("manifest must cover exactly the routed order, got %+v", res.Jobs[0])
	}
}

func TestPlanDailyBatchReleasesUnusedVehicles(t *testing.T) {
	st := store.NewMemory()
	seed(t, st,
		[]model.ProductSpec{
			{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500},
			{Variant: "mango", MaxSafeTempC: 40, MaxUncooledKm: 1000},
		},
		[]model.Vehicle{
			{ID: "V1000", Class: model.ClassUncovered, CapacityKg: 1000},
			{ID: "V500", Class: model.ClassUncovered, CapacityKg: 500},
		},
		[]model.OrderIn{
			// 1200 kg aggregate commits both vehicles, but no whole 600 kg
			// order fits V500; it must return to the pool for mango.
			{Variant: "tomato", QuantityKg: 600, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate},
			{Variant: "tomato", QuantityKg: 600, Pickup: pt(1, 1), Drop: pt(1, 3), PickupDate: testDate},
			{Variant: "mango", QuantityKg: 400, Pickup: pt(1, 1), Drop: pt(1, 4), PickupDate: testDate},
		})

	p := NewPlanner(st, mild(), nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	byVehicle := map[string]model.TransportJob{}
	for _, j := range res.Jobs {
		byVehicle[j.VehicleID] = j
	}
	if len(res.Jobs) != 2 {
		t.Fatalf("want tomato job on V1000 and mango job on V500, got %+v (log %v)", res.Jobs, res.Log)
	}
	if byVehicle["V1000"].TotalWeightKg != 600 {
		t.Fatalf("V1000 job = %+v", byVehicle["V1000"])
	}
	if byVehicle["V500"].TotalWeightKg != 400 {
		t.Fatalf("released vehicle not reused by later group: %+v", byVehicle["V500"])
	}
	if len(res.UnallocatedOrders) != 1 || res.UnallocatedOrders[0].Reason != "insufficient capacity" {
		t.Fatalf("unallocated = %+v", res.UnallocatedOrders)
	}
}

func TestPlanSingleOrderHappyPath(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000}},
		[]model.OrderIn{{Variant: "tomato", QuantityKg: 250, Pickup: pt(28.61, 77.21), Drop: pt(28.7, 77.3), PickupDate: testDate}})

	p := NewPlanner(st, mild(), nil)
	job, err := p.PlanSingleOrder(context.Background(), created[0].ID)
	if err != nil {
		t.Fatalf("PlanSingleOrder: %v", err)
	}
	if job.VehicleID != "V1" || job.TotalWeightKg != 250 || len(job.Stops) != 2 {
		t.Fatalf("job = %+v", job)
	}
	got, _ := st.GetOrder(context.Background(), created[0].ID)
	if got.Status != model.OrderAssigned || got.JobID != job.ID {
		t.Fatalf("order = %+v", got)
	}
	avail, _ := st.GetAvailableFleet(context.Background(), testDate)
	if len(avail) != 0 {
		t.Fatalf("vehicle not booked: %+v", avail)
	}
}

func TestPlanSingleOrderUnknownVariant(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st, nil,
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000}},
		[]model.OrderIn{{Variant: "durian", QuantityKg: 100, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate}})

	p := NewPlanner(st, mild(), nil)
	if _, err := p.PlanSingleOrder(context.Background(), created[0].ID); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("want ErrUnknownVariant, got %v", err)
	}
}

func TestPlanSingleOrderMissingCoordinates(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000}},
		[]model.OrderIn{{Variant: "tomato", QuantityKg: 100, PickupCity: "nowhere", DropCity: "delhi", PickupDate: testDate}})

	p := NewPlanner(st, mild(), nil)
	if _, err := p.PlanSingleOrder(context.Background(), created[0].ID); !errors.Is(err, ErrMissingCoordinates) {
		t.Fatalf("want ErrMissingCoordinates, got %v", err)
	}
	got, _ := st.GetOrder(context.Background(), created[0].ID)
	if got.Status != model.OrderPending {
		t.Fatalf("order should stay pending, got %+v", got)
	}
	jobs, _ := st.ListJobs(context.Background(), testDate, 10)
	if len(jobs) != 0 {
		t.Fatalf("no job may be committed without coordinates: %+v", jobs)
	}
}

func TestPlanSingleOrderInsufficientCapacity(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "mango", MaxSafeTempC: 40, MaxUncooledKm: 1000}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 500}},
		[]model.OrderIn{{Variant: "mango", QuantityKg: 800, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate}})

	p := NewPlanner(st, mild(), nil)
	_, err := p.PlanSingleOrder(context.Background(), created[0].ID)
	var ice *InsufficientCapacityError
	if !errors.As(err, &ice) {
		t.Fatalf("want InsufficientCapacityError, got %v", err)
	}
	if ice.ShortageKg != 300 {
		t.Fatalf("shortage = %d, want 300", ice.ShortageKg)
	}
	got, _ := st.GetOrder(context.Background(), created[0].ID)
	if got.Status != model.OrderFailedNoCapacity {
		t.Fatalf("order = %+v", got)
	}
	// Nothing was committed for the shorted order.
	jobs, _ := st.ListJobs(context.Background(), testDate, 10)
	if len(jobs) != 0 {
		t.Fatalf("jobs committed despite shortage: %+v", jobs)
	}
}

func TestPlanSingleOrderSpansVehicles(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "mango", MaxSafeTempC: 40, MaxUncooledKm: 1000}},
		[]model.Vehicle{
			{ID: "V1", Class: model.ClassUncovered, CapacityKg: 500},
			{ID: "V2", Class: model.ClassUncovered, CapacityKg: 400},
		},
		[]model.OrderIn{{Variant: "mango", QuantityKg: 800, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate}})

	p := NewPlanner(st, mild(), nil)
	job, err := p.PlanSingleOrder(context.Background(), created[0].ID)
	if err != nil {
		t.Fatalf("PlanSingleOrder: %v", err)
	}
	if job.VehicleID != "V1" || job.TotalWeightKg != 500 {
		t.Fatalf("first job = %+v", job)
	}
	jobs, _ := st.ListJobs(context.Background(), testDate, 10)
	if len(jobs) != 2 {
		t.Fatalf("want 2 jobs, got %+v", jobs)
	}
	avail, _ := st.GetAvailableFleet(context.Background(), testDate)
	if len(avail) != 0 {
		t.Fatalf("both vehicles should be booked, remaining %+v", avail)
	}
}

func TestPlanSingleOrderRejectsNonPending(t *testing.T) {
	st := store.NewMemory()
	created := seed(t, st,
		[]model.ProductSpec{{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500}},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 1000}},
		[]model.OrderIn{{Variant: "tomato", QuantityKg: 100, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate}})

	if err := st.UpdateOrderStatus(context.Background(), created[0].ID, model.OrderAssigned, "j1"); err != nil {
		t.Fatal(err)
	}
	p := NewPlanner(st, mild(), nil)
	if _, err := p.PlanSingleOrder(context.Background(), created[0].ID); err == nil {
		t.Fatal("want error for non-pending order")
	}
}

func TestPlanDailyBatchSharesFleetAcrossGroups(t *testing.T) {
	st := store.NewMemory()
	seed(t, st,
		[]model.ProductSpec{
			{Variant: "tomato", MaxSafeTempC: 30, MaxUncooledKm: 500},
			{Variant: "mango", MaxSafeTempC: 40, MaxUncooledKm: 1000},
		},
		[]model.Vehicle{{ID: "V1", Class: model.ClassUncovered, CapacityKg: 500}},
		[]model.OrderIn{
			{Variant: "tomato", QuantityKg: 500, Pickup: pt(1, 1), Drop: pt(1, 2), PickupDate: testDate},
			{Variant: "mango", QuantityKg: 200, Pickup: pt(1, 1), Drop: pt(1, 3), PickupDate: testDate},
		})

	p := NewPlanner(st, mild(), nil)
	res, err := p.PlanDailyBatch(context.Background(), testDate)
	if err != nil {
		t.Fatalf("PlanDailyBatch: %v", err)
	}
	// The first group consumes V1; the second must not see it again.
	if len(res.Jobs) != 1 || res.Jobs[0].VehicleID != "V1" {
		t.Fatalf("jobs = %+v", res.Jobs)
	}
	if len(res.UnallocatedOrders) != 1 || res.UnallocatedOrders[0].Reason != "insufficient capacity" {
		t.Fatalf("unallocated = %+v", res.UnallocatedOrders)
	}
}
