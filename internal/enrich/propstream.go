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

// PropertyFacts is what the property data vendor knows beyond the
// assessor roll. All fields are optional; vendors cover parishes
// unevenly.
type PropertyFacts struct {
	EstimatedValue *float64 `json:"estimated_value,omitempty"`
	LotSizeAcres   *float64 `json:"lot_size_acres,omitempty"`
	LastSaleDate   *string  `json:"last_sale_date,omitempty"`
	LastSalePrice  *float64 `json:"last_sale_price,omitempty"`
	OwnerOccupied  *bool    `json:"owner_occupied,omitempty"`
}

// PropertyLookup fetches vendor facts for a parcel. A nil result with a
// nil error means the vendor has no record.
type PropertyLookup interface {
	LookupParcel(ctx context.Context, parcelNumber, parish string) (*PropertyFacts, error)
}

const propstreamDefaultURL = "https://api.propstream.com"

// PropstreamClient reads property detail from the Propstream API. Only
// call prep consumes these facts; nothing in scoring or offers depends
// on a paid vendor being reachable.
type PropstreamClient struct {
	http    httpretry.HTTPDoer
	apiKey  string
	baseURL string
	cache   *ttlCache[*PropertyFacts]
}

// NewPropstreamClient builds a client with rate-limit-aware transport
// and a TTL cache sized by the enrichment config.
func NewPropstreamClient(apiKey string, cacheTTL time.Duration) *PropstreamClient {
	return &PropstreamClient{
		http:    httpretry.NewRateLimitRetryClient(nil),
		apiKey:  apiKey,
		baseURL: propstreamDefaultURL,
		cache:   newTTLCache[*PropertyFacts](cacheTTL),
	}
}

// SetBaseURL points the client at a different API host. Tests use this.
func (p *PropstreamClient) SetBaseURL(base string) { p.baseURL = strings.TrimRight(base, "/") }

type propstreamResponse struct {
	Properties []struct {
		EstimatedValue *float64 `json:"estimatedValue"`
		LotSizeAcres   *float64 `json:"lotSizeAcres"`
		LastSaleDate   *string  `json:"lastSaleDate"`
		LastSalePrice  *float64 `json:"lastSalePrice"`
		OwnerOccupied  *bool    `json:"ownerOccupied"`
	} `json:"properties"`
}

// LookupParcel fetches vendor facts for one parcel number in a parish.
func (p *PropstreamClient) LookupParcel(ctx context.Context, parcelNumber, parish string) (*PropertyFacts, error) {
	key := strings.ToUpper(parcelNumber + "|" + parish)
	if cached, ok := p.cache.get(key); ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("parcel", parcelNumber)
	q.Set("county", parish)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/properties?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("propstream: build request: %w", err)
	}
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("propstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		p.cache.put(key, nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("propstream: status %d", resp.StatusCode)
	}

	var out propstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("propstream: decode response: %w", err)
	}
	if len(out.Properties) == 0 {
		p.cache.put(key, nil)
		return nil, nil
	}

	prop := out.Properties[0]
	facts := &PropertyFacts{
		EstimatedValue: prop.EstimatedValue,
		LotSizeAcres:   prop.LotSizeAcres,
		LastSaleDate:   prop.LastSaleDate,
		LastSalePrice:  prop.LastSalePrice,
		OwnerOccupied:  prop.OwnerOccupied,
	}
	p.cache.put(key, facts)
	return facts, nil
}
