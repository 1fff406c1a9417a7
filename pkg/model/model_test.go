package model

import (
	"encoding/json"
	"testing"
)

func TestNewOutletView(t *testing.T) {
	tmpl := &Template{
		ID:      7,
		Chain:   ChainZabka,
		LogoURL: "/media/zabka.png",
		Products: []*Product{
			{ID: 1, Name: "Tiger", Flavor: "Mango", Category: "energy_drink", PhotoURL: "/media/tiger.png"},
		},
	}

	tests := []struct {
		name         string
		outlet       *Outlet
		wantProducts int
		wantLogo     string
	}{
		{
			name:         "WithTemplate",
			outlet:       &Outlet{ID: "node/1", Name: "Żabka", Chain: ChainZabka, Lat: 52.23, Lon: 21.01, Template: tmpl},
			wantProducts: 1,
			wantLogo:     "/media/zabka.png",
		},
		{
			name:   "WithoutTemplate",
			outlet: &Outlet{ID: "node/2", Name: "Sklep", Chain: ChainOther},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewOutletView(tt.outlet)
			if v.ID != tt.outlet.ID || v.Lat != tt.outlet.Lat || v.Lon != tt.outlet.Lon {
				t.Errorf("identity not carried over: %+v", v)
			}
			if v.Products == nil {
				t.Fatal("Products must be non-nil so it encodes as []")
			}
			if len(v.Products) != tt.wantProducts {
				t.Errorf("Expected %d products, got %d", tt.wantProducts, len(v.Products))
			}
			if v.LogoURL != tt.wantLogo {
				t.Errorf("Expected logo %q, got %q", tt.wantLogo, v.LogoURL)
			}
		})
	}
}

func TestOutletHit_JSON(t *testing.T) {
	d := 120
	hit := OutletHit{
		OutletView:       OutletView{ID: "node/1", Products: []ProductSummary{}},
		Distance:         40,
		DistanceFromUser: &d,
	}

	raw, err := json.Marshal(hit)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}

	if m["id"] != "node/1" {
		t.Errorf("Expected embedded id, got %v", m["id"])
	}
	if m["distance"] != float64(40) || m["distance_from_user"] != float64(120) {
		t.Errorf("Unexpected distances: %v / %v", m["distance"], m["distance_from_user"])
	}

	hit.DistanceFromUser = nil
	raw, _ = json.Marshal(hit)
	m = nil
	_ = json.Unmarshal(raw, &m)
	if _, ok := m["distance_from_user"]; ok {
		t.Error("distance_from_user must be omitted without a user position")
	}
}
