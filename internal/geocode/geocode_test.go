package geocode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveBuiltin(t *testing.T) {
	tab := NewTable()
	p, ok := tab.Resolve("Delhi")
	if !ok {
		t.Fatal("expected builtin city to resolve")
	}
	if p.Lat != 28.6139 || p.Lng != 77.2090 {
		t.Fatalf("got %+v", p)
	}
	if _, ok := tab.Resolve("atlantis"); ok {
		t.Fatal("unknown city should not resolve")
	}
}

func TestResolveTrimsAndLowercases(t *testing.T) {
	tab := NewTable()
	if _, ok := tab.Resolve("  MUMBAI "); !ok {
		t.Fatal("case/whitespace-insensitive lookup failed")
	}
}

func TestLoadMergesAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	data := "cities:\n  surat: {lat: 21.1702, lng: 72.8311}\n  delhi: {lat: 1.0, lng: 2.0}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	tab := NewTable()
	if err := tab.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p, ok := tab.Resolve("surat"); !ok || p.Lat != 21.1702 {
		t.Fatalf("merged city: ok=%v p=%+v", ok, p)
	}
	if p, _ := tab.Resolve("delhi"); p.Lat != 1.0 {
		t.Fatalf("override not applied: %+v", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	tab := NewTable()
	if err := tab.Load("/nonexistent/cities.yaml"); err == nil {
		t.Fatal("want error for missing file")
	}
}
