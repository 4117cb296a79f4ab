package enrich

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/pkg/httpretry"
)

// Verification is a delivery point validation result. Deliverable means
// USPS confirmed mail can reach the address; Standardized carries the
// corrected street line when USPS returned one.
type Verification struct {
	Deliverable  bool
	Standardized string
	City         string
	State        string
	Zip5         string
}

// AddressVerifier confirms owner mailing addresses before they feed
// scoring and call prep.
type AddressVerifier interface {
	VerifyAddress(ctx context.Context, address, zip string) (*Verification, error)
}

const uspsDefaultURL = "https://secure.shippingapis.com/ShippingAPI.dll"

// USPSVerifier validates addresses against the USPS Web Tools Verify
// API. The roll's one-line mailing address goes out as the street line;
// USPS corrects it against the zip.
type USPSVerifier struct {
	http    httpretry.HTTPDoer
	userID  string
	baseURL string
	cache   *ttlCache[Verification]
}

// NewUSPSVerifier builds a verifier with retrying transport and a TTL
// cache sized by the enrichment config.
func NewUSPSVerifier(userID string, cacheTTL time.Duration) *USPSVerifier {
	return &USPSVerifier{
		http:    httpretry.NewRetryClient(nil, 3),
		userID:  userID,
		baseURL: uspsDefaultURL,
		cache:   newTTLCache[Verification](cacheTTL),
	}
}

// SetBaseURL points the verifier at a different API host. Tests use this.
func (v *USPSVerifier) SetBaseURL(base string) { v.baseURL = strings.TrimRight(base, "/") }

type uspsRequest struct {
	XMLName  xml.Name    `xml:"AddressValidateRequest"`
	UserID   string      `xml:"USERID,attr"`
	Revision int         `xml:"Revision"`
	Address  uspsAddress `xml:"Address"`
}

type uspsAddress struct {
	ID       string `xml:"ID,attr"`
	Address1 string `xml:"Address1"`
	Address2 string `xml:"Address2"`
	City     string `xml:"City"`
	State    string `xml:"State"`
	Zip5     string `xml:"Zip5"`
	Zip4     string `xml:"Zip4"`
}

type uspsResponse struct {
	XMLName xml.Name `xml:"AddressValidateResponse"`
	Address struct {
		Address2        string     `xml:"Address2"`
		City            string     `xml:"City"`
		State           string     `xml:"State"`
		Zip5            string     `xml:"Zip5"`
		DPVConfirmation string     `xml:"DPVConfirmation"`
		Error           *uspsError `xml:"Error"`
	} `xml:"Address"`
}

type uspsError struct {
	Number      string `xml:"Number"`
	Description string `xml:"Description"`
}

// VerifyAddress runs one address through DPV. An address USPS cannot
// find is a definitive not-deliverable answer, not an error; errors mean
// the API itself was unreachable or rejected the request.
func (v *USPSVerifier) VerifyAddress(ctx context.Context, address, zip string) (*Verification, error) {
	key := strings.ToUpper(strings.TrimSpace(address) + "|" + strings.TrimSpace(zip))
	if cached, ok := v.cache.get(key); ok {
		return &cached, nil
	}

	payload, err := xml.Marshal(uspsRequest{
		UserID:   v.userID,
		Revision: 1,
		Address:  uspsAddress{ID: "0", Address2: address, Zip5: zip},
	})
	if err != nil {
		return nil, fmt.Errorf("usps: marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("API", "Verify")
	q.Set("XML", string(payload))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("usps: build request: %w", err)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usps: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("usps: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usps: status %d", resp.StatusCode)
	}

	var out uspsResponse
	if err := xml.Unmarshal(body, &out); err != nil {
		// Auth and quota failures come back as a bare <Error> document.
		var apiErr uspsError
		if xml.Unmarshal(body, &apiErr) == nil && apiErr.Description != "" {
			return nil, fmt.Errorf("usps: %s", apiErr.Description)
		}
		return nil, fmt.Errorf("usps: decode response: %w", err)
	}

	res := Verification{
		Deliverable:  out.Address.DPVConfirmation == "Y",
		Standardized: strings.TrimSpace(out.Address.Address2),
		City:         out.Address.City,
		State:        out.Address.State,
		Zip5:         out.Address.Zip5,
	}
	if out.Address.Error != nil {
		// "Address Not Found" is an answer about the address.
		res = Verification{Deliverable: false}
	}

	v.cache.put(key, res)
	return &res, nil
}
