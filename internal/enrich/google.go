package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/pkg/httpretry"
)

// Geocode is a resolved coordinate pair.
type Geocode struct {
	Lat float64
	Lng float64
}

// Geocoder turns situs addresses into coordinates. A nil result with a
// nil error means the address did not resolve.
type Geocoder interface {
	GeocodeAddress(ctx context.Context, address string) (*Geocode, error)
}

const googleDefaultURL = "https://maps.googleapis.com"

// GoogleGeocoder calls the Google Maps Geocoding API.
type GoogleGeocoder struct {
	http    httpretry.HTTPDoer
	key     string
	baseURL string
	cache   *ttlCache[*Geocode]
}

// NewGoogleGeocoder builds a geocoder with retrying transport and a TTL
// cache sized by the enrichment config.
func NewGoogleGeocoder(apiKey string, cacheTTL time.Duration) *GoogleGeocoder {
	return &GoogleGeocoder{
		http:    httpretry.NewRetryClient(nil, 3),
		key:     apiKey,
		baseURL: googleDefaultURL,
		cache:   newTTLCache[*Geocode](cacheTTL),
	}
}

// SetBaseURL points the geocoder at a different API host. Tests use this.
func (g *GoogleGeocoder) SetBaseURL(base string) { g.baseURL = strings.TrimRight(base, "/") }

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// GeocodeAddress resolves one address. ZERO_RESULTS is a miss, not an
// error; the miss is cached so the same dead address is not retried all
// day.
func (g *GoogleGeocoder) GeocodeAddress(ctx context.Context, address string) (*Geocode, error) {
	key := strings.ToUpper(strings.TrimSpace(address))
	if cached, ok := g.cache.get(key); ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.key)
	endpoint := g.baseURL + "/maps/api/geocode/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: status %d", resp.StatusCode)
	}
	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}

	switch out.Status {
	case "OK":
		if len(out.Results) == 0 {
			return nil, nil
		}
		loc := out.Results[0].Geometry.Location
		gc := &Geocode{Lat: loc.Lat, Lng: loc.Lng}
		g.cache.put(key, gc)
		return gc, nil
	case "ZERO_RESULTS":
		g.cache.put(key, nil)
		return nil, nil
	default:
		if out.ErrorMessage != "" {
			return nil, fmt.Errorf("geocode: %s: %s", out.Status, out.ErrorMessage)
		}
		return nil, fmt.Errorf("geocode: %s", out.Status)
	}
}
