package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acreage/leadline/internal/service/resolve"
)

// headerAliases maps each roll field to the header spellings county
// exports actually ship. Aliases are matched after normalizeHeader, so
// "Assessment No." and "assessment_no" are the same alias.
var headerAliases = map[string][]string{
	"parcel_number": {
		"parcel_number", "parcel_no", "parcel_id", "parcel", "parcelid",
		"assessment_number", "assessment_no", "assessment_id", "apn", "pin",
		"tax_parcel_id", "geo_parcel_id",
	},
	"parish": {
		"parish", "parish_name", "county", "county_name",
	},
	"owner_name": {
		"owner_name", "owner", "owners_name", "taxpayer_name", "taxpayer",
		"assessee_name", "assessee", "name",
	},
	"mailing_address": {
		"mailing_address", "mail_address", "owner_address", "taxpayer_address",
		"address", "address_1", "mailing_addr",
	},
	"mailing_zip": {
		"mailing_zip", "mail_zip", "owner_zip", "taxpayer_zip", "zip",
		"zip_code", "zipcode", "postal_code",
	},
	"owner_phone": {
		"owner_phone", "phone", "phone_number", "telephone", "contact_phone",
	},
	"owner_email": {
		"owner_email", "email", "email_address",
	},
	"situs_address": {
		"situs_address", "situs_addr", "property_address", "site_address",
		"physical_address", "location_address", "situs",
	},
	"situs_city": {
		"situs_city", "property_city", "site_city", "city",
	},
	"situs_state": {
		"situs_state", "property_state", "site_state", "state",
	},
	"situs_zip": {
		"situs_zip", "property_zip", "site_zip",
	},
	"land_value": {
		"land_value", "land_assessed_value", "assessed_land_value",
		"land_av", "land_assd_value", "land",
	},
	"improvement_value": {
		"improvement_value", "improvement_assessed_value",
		"assessed_improvement_value", "improvements_value", "impr_value",
		"improvements",
	},
	"lot_size_acres": {
		"lot_size_acres", "acres", "acreage", "lot_acres", "deeded_acres",
		"calculated_acres", "lot_size",
	},
	"adjudicated": {
		"adjudicated", "is_adjudicated", "adjudicated_flag",
		"adjudication_status", "adj_status",
	},
	"years_delinquent": {
		"years_delinquent", "years_tax_delinquent", "delinquent_years",
		"tax_years_delinquent", "years_due",
	},
}

// aliasIndex is the reverse of headerAliases: normalized alias -> field.
var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for field, aliases := range headerAliases {
		for _, a := range aliases {
			idx[a] = field
		}
	}
	return idx
}()

// normalizeHeader collapses the spellings assessors use down to one key:
// lowercase, trimmed, punctuation and BOM bytes stripped, spaces and
// hyphens folded to underscores.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	b.Grow(len(h))
	pending := false
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pending = false
		case r == ' ' || r == '-' || r == '_':
			pending = true
		}
	}
	return b.String()
}

// Mapping holds the detected column index for each roll field. -1 means
// the roll does not carry the field.
type Mapping struct {
	ParcelNumber     int
	Parish           int
	OwnerName        int
	MailingAddress   int
	MailingZip       int
	OwnerPhone       int
	OwnerEmail       int
	SitusAddress     int
	SitusCity        int
	SitusState       int
	SitusZip         int
	LandValue        int
	ImprovementValue int
	LotSizeAcres     int
	Adjudicated      int
	YearsDelinquent  int
}

// MapHeader detects which column carries which roll field. The first
// column matching a field's alias wins; later duplicates are ignored.
// Parcel number and owner name are the resolver's identity keys, so a
// header missing either is rejected.
func MapHeader(header []string) (*Mapping, error) {
	m := &Mapping{
		ParcelNumber: -1, Parish: -1, OwnerName: -1,
		MailingAddress: -1, MailingZip: -1, OwnerPhone: -1, OwnerEmail: -1,
		SitusAddress: -1, SitusCity: -1, SitusState: -1, SitusZip: -1,
		LandValue: -1, ImprovementValue: -1, LotSizeAcres: -1,
		Adjudicated: -1, YearsDelinquent: -1,
	}
	targets := map[string]*int{
		"parcel_number":     &m.ParcelNumber,
		"parish":            &m.Parish,
		"owner_name":        &m.OwnerName,
		"mailing_address":   &m.MailingAddress,
		"mailing_zip":       &m.MailingZip,
		"owner_phone":       &m.OwnerPhone,
		"owner_email":       &m.OwnerEmail,
		"situs_address":     &m.SitusAddress,
		"situs_city":        &m.SitusCity,
		"situs_state":       &m.SitusState,
		"situs_zip":         &m.SitusZip,
		"land_value":        &m.LandValue,
		"improvement_value": &m.ImprovementValue,
		"lot_size_acres":    &m.LotSizeAcres,
		"adjudicated":       &m.Adjudicated,
		"years_delinquent":  &m.YearsDelinquent,
	}

	for i, h := range header {
		field, ok := aliasIndex[normalizeHeader(h)]
		if !ok {
			continue
		}
		if slot := targets[field]; *slot < 0 {
			*slot = i
		}
	}

	var missing []string
	if m.ParcelNumber < 0 {
		missing = append(missing, "parcel number")
	}
	if m.OwnerName < 0 {
		missing = append(missing, "owner name")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("roll header missing %s column", strings.Join(missing, " and "))
	}
	return m, nil
}

// Row converts one CSV record into a roll row using the detected
// columns. Records shorter than the header are tolerated; absent cells
// read as empty.
func (m *Mapping) Row(record []string) resolve.RollRow {
	return resolve.RollRow{
		ParcelNumber:     cell(record, m.ParcelNumber),
		Parish:           cell(record, m.Parish),
		OwnerName:        cell(record, m.OwnerName),
		MailingAddress:   cell(record, m.MailingAddress),
		MailingZip:       cell(record, m.MailingZip),
		OwnerPhone:       cell(record, m.OwnerPhone),
		OwnerEmail:       cell(record, m.OwnerEmail),
		SitusAddress:     cell(record, m.SitusAddress),
		SitusCity:        cell(record, m.SitusCity),
		SitusState:       cell(record, m.SitusState),
		SitusZip:         cell(record, m.SitusZip),
		LandValue:        parseNumber(cell(record, m.LandValue)),
		ImprovementValue: parseNumber(cell(record, m.ImprovementValue)),
		LotSizeAcres:     parseNumber(cell(record, m.LotSizeAcres)),
		IsAdjudicated:    parseFlag(cell(record, m.Adjudicated)),
		YearsDelinquent:  int(parseNumber(cell(record, m.YearsDelinquent))),
	}
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// parseNumber reads assessor-formatted numerics: "$12,500.00" and
// "12500" both parse, anything unreadable reads as zero.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFlag reads adjudication markers. Rolls ship them as booleans,
// Y/N letters, or the word itself in a status column.
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "adjudicated", "adj":
		return true
	}
	return false
}
