package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// osmResult is the shared response row shape of Nominatim and
// LocationIQ (which runs Nominatim under the hood).
type osmResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		County      string `json:"county"`
	} `json:"address"`
}

// osmQuery performs one forward-geocode request against an
// OSM-compatible search endpoint and maps the top row to a Result.
func osmQuery(ctx context.Context, client *http.Client, baseURL string, q url.Values, headers map[string]string) (*Result, error) {
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geocode read: %w", err)
	}
	// LocationIQ answers 404 when nothing matched.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode status %d: %s", resp.StatusCode, body)
	}

	var rows []osmResult
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("geocode decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	top := rows[0]
	lat, err := strconv.ParseFloat(top.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode lat %q: %w", top.Lat, err)
	}
	lon, err := strconv.ParseFloat(top.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode lon %q: %w", top.Lon, err)
	}

	return &Result{
		Lat:       lat,
		Lon:       lon,
		Address:   top.DisplayName,
		County:    top.Address.County,
		HasStreet: top.Address.Road != "" || top.Address.HouseNumber != "",
	}, nil
}

const (
	locationIQURL = "https://us1.locationiq.com/v1/search"
	nominatimURL  = "https://nominatim.openstreetmap.org/search"
)

// LocationIQ calls the hosted LocationIQ forward-geocoding API.
type LocationIQ struct {
	apiKey  string
	country string
	baseURL string
	client  *http.Client
}

func NewLocationIQ(apiKey, country string) *LocationIQ {
	return &LocationIQ{
		apiKey:  apiKey,
		country: country,
		baseURL: locationIQURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (l *LocationIQ) Name() string { return "locationiq" }

func (l *LocationIQ) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("key", l.apiKey)
	q.Set("q", address)
	if l.country != "" {
		q.Set("countrycodes", l.country)
	}
	return osmQuery(ctx, l.client, l.baseURL, q, nil)
}

// Nominatim calls the public OSM Nominatim instance. Their usage
// policy requires an identifying User-Agent and at most one request
// per second; the pipeline's call rate stays well under that.
type Nominatim struct {
	country string
	baseURL string
	client  *http.Client
}

func NewNominatim(country string) *Nominatim {
	return &Nominatim{
		country: country,
		baseURL: nominatimURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (n *Nominatim) Name() string { return "nominatim" }

func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("q", address)
	if n.country != "" {
		q.Set("countrycodes", n.country)
	}
	headers := map[string]string{"User-Agent": "scanmap/1.0"}
	return osmQuery(ctx, n.client, n.baseURL, q, headers)
}
