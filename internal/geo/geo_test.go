package geo

import (
	"testing"

	"coldroute/internal/model"
)

func TestDistanceSymmetricAndZero(t *testing.T) {
	pts := []model.GeoPoint{
		{Lat: 55.7558, Lng: 37.6176},
		{Lat: 59.9343, Lng: 30.3351},
		{Lat: 0, Lng: 0},
		{Lat: -33.8688, Lng: 151.2093},
	}
	for _, a := range pts {
		if d := Distance(a, a); d != 0 {
			t.Fatalf("Distance(a,a) = %v, want 0", d)
		}
		for _, b := range pts {
			if Distance(a, b) != Distance(b, a) {
				t.Fatalf("asymmetric distance for %v %v", a, b)
			}
		}
	}
}

func TestDistanceKnownPair(t *testing.T) {
	moscow := model.GeoPoint{Lat: 55.7558, Lng: 37.6176}
	spb := model.GeoPoint{Lat: 59.9343, Lng: 30.3351}
	d := Distance(moscow, spb)
	if d < 600 || d > 800 {
		t.Fatalf("Moscow-SPb distance = %v km, want within (600, 800)", d)
	}
}

func TestDistanceRounding(t *testing.T) {
	a := model.GeoPoint{Lat: 0, Lng: 0}
	b := model.GeoPoint{Lat: 0, Lng: 0.001}
	d := Distance(a, b)
	if d != 0.1 {
		t.Fatalf("expected one-decimal rounding, got %v", d)
	}
}
