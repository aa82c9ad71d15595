package model

// Core domain types for cold-chain transport planning.

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// VehicleClass orders protective capability: refrigerated ⊇ covered ⊇ uncovered.
type VehicleClass string

const (
    ClassUncovered    VehicleClass = "UNCOVERED"
    ClassCovered      VehicleClass = "COVERED"
    ClassRefrigerated VehicleClass = "REFRIGERATED"
)

// Rank returns the protective rank of the class (higher protects more).
func (c VehicleClass) Rank() int {
    switch c {
    case ClassRefrigerated:
        return 2
    case ClassCovered:
        return 1
    default:
        return 0
    }
}

// Valid reports whether c is one of the three known classes.
func (c VehicleClass) Valid() bool {
    return c == ClassUncovered || c == ClassCovered || c == ClassRefrigerated
}

// Order lifecycle statuses.
const (
    OrderPending          = "pending"
    OrderAssigned         = "assigned"
    OrderFailedNoCapacity = "failed_no_capacity"
)

// Vehicle availability for the planning horizon.
const (
    VehicleAvailable = "available"
    VehicleBooked    = "booked"
)

// Transport job statuses. Transitions past "scheduled" are driven by collaborators.
const (
    JobScheduled  = "scheduled"
    JobInProgress = "in_progress"
    JobCompleted  = "completed"
)

type Order struct {
    ID         string    `json:"id"`
    Variant    string    `json:"variant"`
    QuantityKg int       `json:"quantityKg"`
    Pickup     *GeoPoint `json:"pickup,omitempty"`
    PickupCity string    `json:"pickupCity,omitempty"`
    Drop       *GeoPoint `json:"drop,omitempty"`
    DropCity   string    `json:"dropCity,omitempty"`
    PickupDate string    `json:"pickupDate"`
    Status     string    `json:"status"`
    JobID      string    `json:"jobId,omitempty"`
}

// OrderIn is the ingestion shape; the store assigns IDs and the pending status.
type OrderIn struct {
    Variant    string    `json:"variant"`
    QuantityKg int       `json:"quantityKg"`
    Pickup     *GeoPoint `json:"pickup,omitempty"`
    PickupCity string    `json:"pickupCity,omitempty"`
    Drop       *GeoPoint `json:"drop,omitempty"`
    DropCity   string    `json:"dropCity,omitempty"`
    PickupDate string    `json:"pickupDate"`
}

// ProductSpec is immutable cold-chain reference data, keyed by variant.
type ProductSpec struct {
    Variant            string  `json:"variant"`
    OptimalTempC       float64 `json:"optimalTempC"`
    MaxSafeTempC       float64 `json:"maxSafeTempC"`
    MaxUncooledKm      float64 `json:"maxUncooledKm"`
    ForceRefrigeration bool    `json:"forceRefrigeration"`
}

type Vehicle struct {
    ID         string       `json:"id"`
    Class      VehicleClass `json:"class"`
    CapacityKg int          `json:"capacityKg"`
    Location   GeoPoint     `json:"location"`
    Status     string       `json:"status"`
}

// WeatherSnapshot is ephemeral; fetched once per order/group per pass.
type WeatherSnapshot struct {
    TemperatureC float64 `json:"temperatureC"`
    Raining      bool    `json:"raining"`
    Condition    string  `json:"condition"`
}

// Assignment is a vehicle committed to carry part of a group's load.
// The allocator fills Vehicle/LoadKg/Class/Reason; the orchestrator attaches Orders.
type Assignment struct {
    Vehicle Vehicle      `json:"vehicle"`
    Orders  []Order      `json:"orders,omitempty"`
    LoadKg  int          `json:"loadKg"`
    Class   VehicleClass `json:"class"`
    Reason  string       `json:"reason,omitempty"`
}

type StopType string

const (
    StopPickup StopType = "PICKUP"
    StopDrop   StopType = "DROP"
)

type RouteStop struct {
    Seq                int      `json:"seq"`
    Type               StopType `json:"type"`
    At                 GeoPoint `json:"at"`
    DistanceFromLastKm float64  `json:"distanceFromLastKm"`
    OrderID            string   `json:"orderId"`
}

type TransportJob struct {
    ID            string       `json:"id"`
    PlanDate      string       `json:"planDate"`
    VehicleID     string       `json:"vehicleId"`
    VehicleClass  VehicleClass `json:"vehicleClass"`
    TotalWeightKg int          `json:"totalWeightKg"`
    Stops         []RouteStop  `json:"stops"`
    Status        string       `json:"status"`
    // Reason records why the risk evaluator demanded this vehicle class.
    Reason        string       `json:"reason,omitempty"`
}

// TotalDistanceKm sums per-leg distances across the manifest.
func (j TransportJob) TotalDistanceKm() float64 {
    total := 0.0
    for _, s := range j.Stops {
        total += s.DistanceFromLastKm
    }
    return total
}
