package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/phone"
	"github.com/acreage/leadline/internal/pkg/logger"
)

const canonicalIDLen = 12

// CanonicalParcelID collapses the assessor's parcel key variants onto a
// fixed-width identity: strip everything but alphanumerics, uppercase,
// right-pad with '0' to 12 chars, truncate at 12. Idempotent.
func CanonicalParcelID(raw string) string {
	var b strings.Builder
	b.Grow(canonicalIDLen)
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
		if b.Len() == canonicalIDLen {
			break
		}
	}
	s := b.String()
	if len(s) < canonicalIDLen {
		s += strings.Repeat("0", canonicalIDLen-len(s))
	}
	return s
}

// NormalizeName uppercases an owner name and collapses interior
// whitespace so "Smith,  John" and "SMITH, JOHN" hash identically.
func NormalizeName(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// NormalizeZip keeps the 5-digit prefix of a ZIP or ZIP+4.
func NormalizeZip(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if b.Len() == 5 {
			break
		}
	}
	return b.String()
}

// MatchHash derives the party identity hash from an already-normalized
// name and zip: hex(SHA-256("NAME|zip")).
func MatchHash(normalizedName, normalizedZip string) string {
	sum := sha256.Sum256([]byte(normalizedName + "|" + normalizedZip))
	return hex.EncodeToString(sum[:])
}

// RollRow is one parsed county roll record, already column-mapped by the
// ingest layer. Zero values mean the roll did not carry the field.
type RollRow struct {
	ParcelNumber     string
	Parish           string
	OwnerName        string
	MailingAddress   string
	MailingZip       string
	OwnerPhone       string
	OwnerEmail       string
	SitusAddress     string
	SitusCity        string
	SitusState       string
	SitusZip         string
	LandValue        float64
	ImprovementValue float64
	LotSizeAcres     float64
	IsAdjudicated    bool
	YearsDelinquent  int
	Raw              map[string]string
}

// Result identifies the rows a RollRow resolved to.
type Result struct {
	Parcel  *domain.Parcel
	Party   *domain.Party
	Owner   *domain.Owner
	Lead    *domain.Lead
	NewLead bool
}

// Stats counts resolver outcomes across a batch. Safe for concurrent use.
type Stats struct {
	Rows     atomic.Int64
	NewLeads atomic.Int64
	Errors   atomic.Int64
}

// Resolver wires the four-step upsert protocol over the stores.
type Resolver struct {
	parcels ParcelStore
	parties PartyStore
	owners  OwnerStore
	leads   LeadStore
}

// NewResolver builds a resolver over the given stores.
func NewResolver(parcels ParcelStore, parties PartyStore, owners OwnerStore, leads LeadStore) *Resolver {
	return &Resolver{parcels: parcels, parties: parties, owners: owners, leads: leads}
}

// Resolve runs one roll row through parcel, party, owner and lead
// resolution. marketCode scopes every created row.
func (r *Resolver) Resolve(ctx context.Context, marketCode string, row RollRow) (*Result, error) {
	if strings.TrimSpace(row.ParcelNumber) == "" {
		return nil, fmt.Errorf("roll row has no parcel number")
	}
	if strings.TrimSpace(row.OwnerName) == "" {
		return nil, fmt.Errorf("roll row has no owner name")
	}

	parcel, err := r.resolveParcel(ctx, marketCode, row)
	if err != nil {
		return nil, fmt.Errorf("resolve parcel %s: %w", row.ParcelNumber, err)
	}

	party, err := r.resolveParty(ctx, marketCode, row)
	if err != nil {
		return nil, fmt.Errorf("resolve party: %w", err)
	}

	owner, err := r.resolveOwner(ctx, party.ID, row)
	if err != nil {
		return nil, fmt.Errorf("resolve owner for party %d: %w", party.ID, err)
	}

	lead, created, err := r.leads.Upsert(ctx, owner.ID, parcel.ID, marketCode)
	if err != nil {
		return nil, fmt.Errorf("upsert lead owner=%d parcel=%d: %w", owner.ID, parcel.ID, err)
	}

	return &Result{Parcel: parcel, Party: party, Owner: owner, Lead: lead, NewLead: created}, nil
}

// ResolveBatch runs rows sequentially, counting failures instead of
// aborting; one malformed assessor row must not sink the roll.
func (r *Resolver) ResolveBatch(ctx context.Context, marketCode string, rows []RollRow, stats *Stats) error {
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Rows.Add(1)
		res, err := r.Resolve(ctx, marketCode, rows[i])
		if err != nil {
			stats.Errors.Add(1)
			logger.Warn("roll row skipped", "row", i, "error", err)
			continue
		}
		if res.NewLead {
			stats.NewLeads.Add(1)
		}
	}
	return nil
}

func (r *Resolver) resolveParcel(ctx context.Context, marketCode string, row RollRow) (*domain.Parcel, error) {
	p := &domain.Parcel{
		CanonicalParcelID:  CanonicalParcelID(row.ParcelNumber),
		Parish:             strings.ToUpper(strings.TrimSpace(row.Parish)),
		MarketCode:         marketCode,
		IsAdjudicated:      row.IsAdjudicated,
		YearsTaxDelinquent: row.YearsDelinquent,
	}
	if v := strings.TrimSpace(row.SitusAddress); v != "" {
		p.SitusAddress = &v
	}
	if v := strings.TrimSpace(row.SitusCity); v != "" {
		p.City = &v
	}
	if v := strings.TrimSpace(row.SitusState); v != "" {
		p.State = &v
	}
	if v := NormalizeZip(row.SitusZip); v != "" {
		p.PostalCode = &v
	}
	if row.LandValue > 0 {
		v := row.LandValue
		p.LandAssessedValue = &v
	}
	if row.ImprovementValue > 0 {
		v := row.ImprovementValue
		p.ImprovementAssessedValue = &v
	}
	if row.LotSizeAcres > 0 {
		v := row.LotSizeAcres
		p.LotSizeAcres = &v
	}
	if len(row.Raw) > 0 {
		if raw, err := json.Marshal(row.Raw); err == nil {
			p.RawData = raw
		}
	}
	if err := r.parcels.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Resolver) resolveParty(ctx context.Context, marketCode string, row RollRow) (*domain.Party, error) {
	name := NormalizeName(row.OwnerName)
	zip := NormalizeZip(row.MailingZip)

	p := &domain.Party{
		NormalizedName: name,
		NormalizedZip:  zip,
		MatchHash:      MatchHash(name, zip),
		DisplayName:    strings.Join(strings.Fields(row.OwnerName), " "),
		MarketCode:     marketCode,
	}
	if v := strings.TrimSpace(row.MailingAddress); v != "" {
		p.RawMailingAddress = &v
	}
	if err := r.parties.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Resolver) resolveOwner(ctx context.Context, partyID int64, row RollRow) (*domain.Owner, error) {
	o := &domain.Owner{PartyID: partyID}
	if e164, mobile := phone.NormalizeMobile(row.OwnerPhone); e164 != "" {
		o.PhonePrimary = &e164
		o.IsTCPASafe = mobile
	}
	if v := strings.ToLower(strings.TrimSpace(row.OwnerEmail)); v != "" && strings.Contains(v, "@") {
		o.Email = &v
	}
	if err := r.owners.Upsert(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// FirstName extracts a usable first name from an assessor display name
// for message personalization. Handles "LAST, FIRST" and "First Last";
// entities (LLC, TRUST, ESTATE) return "".
func FirstName(displayName string) string {
	name := strings.Join(strings.Fields(displayName), " ")
	if name == "" {
		return ""
	}
	upper := strings.ToUpper(name)
	for _, marker := range []string{" LLC", " L L C", " INC", " TRUST", " ESTATE", " PROPERTIES", " HOLDINGS", " PARTNERSHIP", " CORP"} {
		if strings.Contains(upper, marker) {
			return ""
		}
	}

	var first string
	if i := strings.Index(name, ","); i >= 0 {
		// "SMITH, JOHN A" layout.
		rest := strings.Fields(name[i+1:])
		if len(rest) == 0 {
			return ""
		}
		first = rest[0]
	} else {
		first = strings.Fields(name)[0]
	}
	if len(first) < 2 {
		return ""
	}
	return strings.ToUpper(first[:1]) + strings.ToLower(first[1:])
}
