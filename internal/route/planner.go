// Package route builds pickup/drop stop sequences with a greedy
// nearest-neighbor heuristic.
//
// The algorithm minimizes immediate travel distance at each step. It does not
// attempt an exact TSP-with-precedence solution; it produces a feasible,
// reasonably short route in O(n²) over the stop count.
package route

import (
	"coldroute/internal/geo"
	"coldroute/internal/model"
)

type candidate struct {
	typ     model.StopType
	at      model.GeoPoint
	orderID string
}

// Plan sequences two stops per order (pickup then drop) starting from start.
// A drop becomes eligible only once its order's pickup has been placed, so
// every order's pickup index is strictly below its drop index. Ties on
// distance are broken by input order, which keeps the result deterministic.
// Orders must arrive with resolved coordinates.
func Plan(start model.GeoPoint, orders []model.Order) []model.RouteStop {
	unvisited := make([]candidate, 0, 2*len(orders))
	for _, o := range orders {
		if o.Pickup == nil || o.Drop == nil {
			continue
		}
		unvisited = append(unvisited, candidate{typ: model.StopPickup, at: *o.Pickup, orderID: o.ID})
		unvisited = append(unvisited, candidate{typ: model.StopDrop, at: *o.Drop, orderID: o.ID})
	}

	onboard := map[string]bool{}
	stops := []model.RouteStop{}
	pos := start

	for len(unvisited) > 0 {
		best := -1
		bestDist := 0.0
		for i, c := range unvisited {
			if c.typ == model.StopDrop && !onboard[c.orderID] {
				continue
			}
			d := geo.Distance(pos, c.at)
			if best == -1 || d < bestDist {
				best = i
				bestDist = d
			}
		}
		if best == -1 {
			// No eligible candidate means malformed input; bail out rather than spin.
			break
		}
		sel := unvisited[best]
		stops = append(stops, model.RouteStop{
			Seq:                len(stops) + 1,
			Type:               sel.typ,
			At:                 sel.at,
			DistanceFromLastKm: bestDist,
			OrderID:            sel.orderID,
		})
		pos = sel.at
		if sel.typ == model.StopPickup {
			onboard[sel.orderID] = true
		}
		unvisited = append(unvisited[:best], unvisited[best+1:]...)
	}
	return stops
}
