package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
)

// Service runs the enrichment pass: geocode parcels that have a situs
// address but no coordinates, and DPV-verify party mailing addresses.
// Nil adapters mean the concern is disabled and its loop is skipped.
type Service struct {
	st       Stores
	verifier AddressVerifier
	geocoder Geocoder
	lookup   PropertyLookup
}

// NewService wires the enrichment pass over the stores and whatever
// adapters are enabled.
func NewService(st Stores, verifier AddressVerifier, geocoder Geocoder, lookup PropertyLookup) *Service {
	return &Service{st: st, verifier: verifier, geocoder: geocoder, lookup: lookup}
}

// Adapters builds the enabled external clients from configuration.
// Disabled or unkeyed adapters come back nil.
func Adapters(cfg config.EnrichmentConfig) (AddressVerifier, Geocoder, PropertyLookup) {
	ttl := time.Duration(cfg.CacheTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	var verifier AddressVerifier
	if cfg.EnableUSPS && cfg.USPSUserID != "" {
		verifier = NewUSPSVerifier(cfg.USPSUserID, ttl)
	}
	var geocoder Geocoder
	if cfg.EnableGoogle && cfg.GoogleAPIKey != "" {
		geocoder = NewGoogleGeocoder(cfg.GoogleAPIKey, ttl)
	}
	var lookup PropertyLookup
	if cfg.EnablePropstream && cfg.PropstreamAPIKey != "" {
		lookup = NewPropstreamClient(cfg.PropstreamAPIKey, ttl)
	}
	return verifier, geocoder, lookup
}

// Summary counts one enrichment pass.
type Summary struct {
	Market        string `json:"market"`
	Geocoded      int    `json:"geocoded"`
	GeocodeMisses int    `json:"geocode_misses"`
	Verified      int    `json:"verified"`
	Deliverable   int    `json:"deliverable"`
	Errors        int    `json:"errors"`
}

// Run enriches up to limit parcels and limit parties in the market.
// Adapter failures are logged and counted, never fatal; only context
// cancellation stops the pass.
func (s *Service) Run(ctx context.Context, marketCode string, limit int) (*Summary, error) {
	sum := &Summary{Market: marketCode}

	if s.geocoder != nil {
		if err := s.geocodeParcels(ctx, marketCode, limit, sum); err != nil {
			return sum, err
		}
	}
	if s.verifier != nil {
		if err := s.verifyParties(ctx, marketCode, limit, sum); err != nil {
			return sum, err
		}
	}

	logger.Info("enrichment pass complete",
		"market", marketCode,
		"geocoded", sum.Geocoded,
		"geocode_misses", sum.GeocodeMisses,
		"verified", sum.Verified,
		"deliverable", sum.Deliverable,
		"errors", sum.Errors,
	)
	return sum, nil
}

func (s *Service) geocodeParcels(ctx context.Context, marketCode string, limit int, sum *Summary) error {
	parcels, err := s.st.Parcels.ListMissingCoordinates(ctx, marketCode, limit)
	if err != nil {
		return err
	}
	for i := range parcels {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &parcels[i]
		gc, err := s.geocoder.GeocodeAddress(ctx, situsLine(p))
		if err != nil {
			sum.Errors++
			logger.Warn("geocode failed", "parcel_id", p.ID, "error", err)
			continue
		}
		if gc == nil {
			sum.GeocodeMisses++
			continue
		}
		if err := s.st.Parcels.SetCoordinates(ctx, p.ID, gc.Lat, gc.Lng); err != nil {
			sum.Errors++
			logger.Warn("store coordinates failed", "parcel_id", p.ID, "error", err)
			continue
		}
		sum.Geocoded++
	}
	return nil
}

func (s *Service) verifyParties(ctx context.Context, marketCode string, limit int, sum *Summary) error {
	parties, err := s.st.Parties.ListUnverifiedMailing(ctx, marketCode, limit)
	if err != nil {
		return err
	}
	for i := range parties {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &parties[i]
		if p.RawMailingAddress == nil {
			continue
		}
		res, err := s.verifier.VerifyAddress(ctx, *p.RawMailingAddress, p.NormalizedZip)
		if err != nil {
			sum.Errors++
			logger.Warn("address verification failed", "party_id", p.ID, "error", err)
			continue
		}
		var standardized *string
		if res.Standardized != "" {
			standardized = &res.Standardized
		}
		if err := s.st.Parties.SetMailingVerification(ctx, p.ID, res.Deliverable, standardized); err != nil {
			sum.Errors++
			logger.Warn("store verification failed", "party_id", p.ID, "error", err)
			continue
		}
		sum.Verified++
		if res.Deliverable {
			sum.Deliverable++
		}
	}
	return nil
}

// Facts fetches vendor property data for call prep. Returns nil when the
// lookup is disabled or the vendor has no record.
func (s *Service) Facts(ctx context.Context, parcel *domain.Parcel) (*PropertyFacts, error) {
	if s.lookup == nil || parcel == nil {
		return nil, nil
	}
	return s.lookup.LookupParcel(ctx, parcel.CanonicalParcelID, parcel.Parish)
}

// situsLine assembles the geocoding query from whatever address parts
// the roll carried.
func situsLine(p *domain.Parcel) string {
	var parts []string
	if p.SitusAddress != nil && *p.SitusAddress != "" {
		parts = append(parts, *p.SitusAddress)
	}
	if p.City != nil && *p.City != "" {
		parts = append(parts, *p.City)
	}
	if p.State != nil && *p.State != "" {
		parts = append(parts, *p.State)
	}
	if p.PostalCode != nil && *p.PostalCode != "" {
		parts = append(parts, *p.PostalCode)
	}
	return strings.Join(parts, ", ")
}
