package geocode

import (
    "fmt"
    "os"
    "strings"

    "gopkg.in/yaml.v3"

    "coldroute/internal/model"
)

// Table maps city names to coordinates. Orders may arrive with a city name
// instead of explicit coordinates; resolution is case-insensitive.
type Table struct {
    cities map[string]model.GeoPoint
}

// builtin covers the depots and markets the scheduler ships with. A YAML
// file loaded at startup can extend or override these.
var builtin = map[string]model.GeoPoint{
    "delhi":     {Lat: 28.6139, Lng: 77.2090},
    "mumbai":    {Lat: 19.0760, Lng: 72.8777},
    "bengaluru": {Lat: 12.9716, Lng: 77.5946},
    "chennai":   {Lat: 13.0827, Lng: 80.2707},
    "kolkata":   {Lat: 22.5726, Lng: 88.3639},
    "hyderabad": {Lat: 17.3850, Lng: 78.4867},
    "pune":      {Lat: 18.5204, Lng: 73.8567},
    "ahmedabad": {Lat: 23.0225, Lng: 72.5714},
    "jaipur":    {Lat: 26.9124, Lng: 75.7873},
    "nagpur":    {Lat: 21.1458, Lng: 79.0882},
}

func NewTable() *Table {
    t := &Table{cities: map[string]model.GeoPoint{}}
    for k, v := range builtin { t.cities[k] = v }
    return t
}

type cityEntry struct {
    Lat float64 `yaml:"lat"`
    Lng float64 `yaml:"lng"`
}

// Load merges entries from a YAML file of the form:
//
//	cities:
//	  surat: {lat: 21.1702, lng: 72.8311}
func (t *Table) Load(path string) error {
    raw, err := os.ReadFile(path)
    if err != nil { return fmt.Errorf("geocode load: %w", err) }
    var doc struct {
        Cities map[string]cityEntry `yaml:"cities"`
    }
    if err := yaml.Unmarshal(raw, &doc); err != nil {
        return fmt.Errorf("geocode parse %s: %w", path, err)
    }
    for name, e := range doc.Cities {
        t.cities[strings.ToLower(strings.TrimSpace(name))] = model.GeoPoint{Lat: e.Lat, Lng: e.Lng}
    }
    return nil
}

func (t *Table) Resolve(city string) (model.GeoPoint, bool) {
    p, ok := t.cities[strings.ToLower(strings.TrimSpace(city))]
    return p, ok
}
