// Package fleet implements the capacity-constrained greedy allocator and the
// per-pass pool of available vehicles.
package fleet

import (
	"sort"

	"coldroute/internal/model"
)

// AcceptableClasses returns the vehicle classes that may serve the required
// class, cheapest-acceptable first. A more protective vehicle always
// substitutes for a less demanding requirement, never the reverse.
func AcceptableClasses(required model.VehicleClass) []model.VehicleClass {
	switch required {
	case model.ClassRefrigerated:
		return []model.VehicleClass{model.ClassRefrigerated}
	case model.ClassCovered:
		return []model.VehicleClass{model.ClassCovered, model.ClassRefrigerated}
	default:
		return []model.VehicleClass{model.ClassUncovered, model.ClassCovered, model.ClassRefrigerated}
	}
}

// Pool is the set of vehicles still assignable within one planning pass.
// It is an owned value: build it from a fleet snapshot at pass start, mutate it
// only through Remove, and write bookings back to the store when the pass ends.
type Pool struct {
	vehicles []model.Vehicle
}

// NewPool copies the snapshot so later pool mutations never alias store state.
func NewPool(vehicles []model.Vehicle) *Pool {
	vs := make([]model.Vehicle, len(vehicles))
	copy(vs, vehicles)
	return &Pool{vehicles: vs}
}

// Vehicles returns the remaining vehicles in pool order.
func (p *Pool) Vehicles() []model.Vehicle {
	out := make([]model.Vehicle, len(p.vehicles))
	copy(out, p.vehicles)
	return out
}

// Add returns a vehicle to the pool, making it assignable again within the
// same pass.
func (p *Pool) Add(v model.Vehicle) {
	p.vehicles = append(p.vehicles, v)
}

// Remove takes a vehicle out of the pool. Returns false when absent.
func (p *Pool) Remove(id string) bool {
	for i, v := range p.vehicles {
		if v.ID == id {
			p.vehicles = append(p.vehicles[:i], p.vehicles[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) Len() int { return len(p.vehicles) }

// Allocate greedily assigns vehicles from the pool to cover quantityKg under
// the required class. Candidates are ordered by class preference (cheapest
// acceptable class first), then capacity descending, then ID for determinism.
// Each selected vehicle is committed and removed from the pool even when only
// partially filled; the returned shortage is positive when the acceptable
// fleet was exhausted first. Callers must not fabricate capacity to cover it.
func Allocate(pool *Pool, required model.VehicleClass, quantityKg int) ([]model.Assignment, int) {
	if quantityKg <= 0 {
		return nil, 0
	}
	pref := map[model.VehicleClass]int{}
	for i, c := range AcceptableClasses(required) {
		pref[c] = i
	}

	candidates := []model.Vehicle{}
	for _, v := range pool.Vehicles() {
		if _, ok := pref[v.Class]; ok {
			candidates = append(candidates, v)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if pref[candidates[i].Class] != pref[candidates[j].Class] {
			return pref[candidates[i].Class] < pref[candidates[j].Class]
		}
		if candidates[i].CapacityKg != candidates[j].CapacityKg {
			return candidates[i].CapacityKg > candidates[j].CapacityKg
		}
		return candidates[i].ID < candidates[j].ID
	})

	assignments := []model.Assignment{}
	remaining := quantityKg
	for _, v := range candidates {
		if remaining <= 0 {
			break
		}
		load := v.CapacityKg
		if remaining < load {
			load = remaining
		}
		assignments = append(assignments, model.Assignment{Vehicle: v, LoadKg: load, Class: required})
		pool.Remove(v.ID)
		remaining -= load
	}
	if remaining < 0 {
		remaining = 0
	}
	return assignments, remaining
}
