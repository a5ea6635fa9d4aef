package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAccept(t *testing.T) {
	counties := []string{"Suffolk"}
	tests := []struct {
		name   string
		result *Result
		wantOK bool
	}{
		{
			"street address in target county",
			&Result{Lat: 40.85, Lon: -73.2, Address: "123 Main St, Smithtown, NY 11787, USA", County: "Suffolk County", HasStreet: true},
			true,
		},
		{"nil result", nil, false},
		{
			"locality only",
			&Result{Lat: 40.85, Lon: -73.2, Address: "Smithtown, NY, USA", County: "Suffolk County"},
			false,
		},
		{
			"wrong county",
			&Result{Lat: 40.7, Lon: -73.6, Address: "123 Main St, Hempstead, NY 11550, USA", County: "Nassau County", HasStreet: true},
			false,
		},
		{
			"missing county",
			&Result{Lat: 40.85, Lon: -73.2, Address: "123 Main St, Smithtown, NY 11787, USA", HasStreet: true},
			false,
		},
		{
			"postcode centroid row",
			&Result{Lat: 40.85, Lon: -73.2, Address: "Smithtown, NY 11787, USA", County: "Suffolk County", HasStreet: true},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := Accept(tt.result, counties)
			if got := reason == ""; got != tt.wantOK {
				t.Errorf("Accept() = %q, want ok=%v", reason, tt.wantOK)
			}
		})
	}
}

func TestAcceptNoTargetCounties(t *testing.T) {
	r := &Result{Lat: 1, Lon: 2, Address: "123 Main St, Anywhere, NY 11700, USA", County: "", HasStreet: true}
	if reason := Accept(r, nil); reason != "" {
		t.Errorf("Accept() = %q, want acceptance when no target counties configured", reason)
	}
}

func TestCountyInSet(t *testing.T) {
	set := []string{"Suffolk", "Nassau County"}
	for county, want := range map[string]bool{
		"Suffolk County": true,
		"suffolk":        true,
		"Nassau":         true,
		"Queens County":  false,
		"":               false,
	} {
		if got := countyInSet(county, set); got != want {
			t.Errorf("countyInSet(%q) = %v, want %v", county, got, want)
		}
	}
}

func TestOSMGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "123 Main St, Smithtown, NY" {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`[{
			"lat": "40.8551",
			"lon": "-73.2007",
			"display_name": "123, Main Street, Smithtown, Suffolk County, New York, 11787, United States",
			"address": {"house_number": "123", "road": "Main Street", "county": "Suffolk County"}
		}]`))
	}))
	defer srv.Close()

	n := NewNominatim("US")
	n.baseURL = srv.URL
	res, err := n.Geocode(context.Background(), "123 Main St, Smithtown, NY")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("got nil result")
	}
	if res.Lat != 40.8551 || res.Lon != -73.2007 {
		t.Errorf("coords = (%v, %v)", res.Lat, res.Lon)
	}
	if res.County != "Suffolk County" || !res.HasStreet {
		t.Errorf("result = %+v, want county and street info", res)
	}
}

func TestOSMGeocodeEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	n := NewNominatim("US")
	n.baseURL = srv.URL
	res, err := n.Geocode(context.Background(), "nowhere at all")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("got %+v, want nil for empty result set", res)
	}
}

func TestGoogleGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "123 Main St, Smithtown, NY 11787, USA",
				"geometry": {"location": {"lat": 40.8551, "lng": -73.2007}},
				"address_components": [
					{"long_name": "123", "types": ["street_number"]},
					{"long_name": "Main Street", "types": ["route"]},
					{"long_name": "Suffolk County", "types": ["administrative_area_level_2", "political"]}
				]
			}]
		}`))
	}))
	defer srv.Close()

	g := NewGoogle("test-key", "US")
	g.baseURL = srv.URL
	res, err := g.Geocode(context.Background(), "123 Main St, Smithtown, NY")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.County != "Suffolk County" || !res.HasStreet {
		t.Fatalf("result = %+v", res)
	}
	if reason := Accept(res, []string{"Suffolk"}); reason != "" {
		t.Errorf("Accept() = %q, want acceptance", reason)
	}
}
