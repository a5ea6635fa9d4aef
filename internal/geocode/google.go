package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Google calls the Google Maps Geocoding API.
type Google struct {
	apiKey  string
	country string
	baseURL string
	client  *http.Client
}

func NewGoogle(apiKey, country string) *Google {
	return &Google{
		apiKey:  apiKey,
		country: country,
		baseURL: googleGeocodeURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *Google) Name() string { return "google" }

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *Google) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	if g.country != "" {
		q.Set("components", "country:"+g.country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google geocode: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google geocode read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google geocode status %d", resp.StatusCode)
	}

	var gr googleResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("google geocode decode: %w", err)
	}
	if gr.Status == "ZERO_RESULTS" || len(gr.Results) == 0 {
		return nil, nil
	}
	if gr.Status != "OK" {
		return nil, fmt.Errorf("google geocode status %s", gr.Status)
	}

	top := gr.Results[0]
	res := &Result{
		Lat:     top.Geometry.Location.Lat,
		Lon:     top.Geometry.Location.Lng,
		Address: top.FormattedAddress,
	}
	for _, comp := range top.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "administrative_area_level_2":
				res.County = comp.LongName
			case "street_number", "route", "intersection":
				res.HasStreet = true
			}
		}
	}
	return res, nil
}
