package ingest

import (
	"strings"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Parcel Number", "parcel_number"},
		{" OWNER-NAME ", "owner_name"},
		{"Assessment No.", "assessment_no"},
		{"\uFEFFparcel_id", "parcel_id"},
		{"Land Value ($)", "land_value"},
		{"Years  Delinquent", "years_delinquent"},
		{"__zip__", "zip"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeHeader(tt.in); got != tt.want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapHeader_DetectsAliases(t *testing.T) {
	header := []string{
		"Assessment No", "Taxpayer Name", "Mailing Address", "ZIP",
		"Phone", "PARISH", "Land Value", "Improvements", "ACRES",
		"Adjudicated", "Years Delinquent", "Situs Address", "City",
		"State", "Situs Zip", "Email", "Ward", // Ward has no alias
	}
	m, err := MapHeader(header)
	if err != nil {
		t.Fatalf("MapHeader: %v", err)
	}

	want := map[string]int{
		"parcel":      0,
		"owner":       1,
		"mailAddr":    2,
		"mailZip":     3,
		"phone":       4,
		"parish":      5,
		"land":        6,
		"impr":        7,
		"acres":       8,
		"adj":         9,
		"yearsDelinq": 10,
		"situsAddr":   11,
		"situsCity":   12,
		"situsState":  13,
		"situsZip":    14,
		"email":       15,
	}
	got := map[string]int{
		"parcel":      m.ParcelNumber,
		"owner":       m.OwnerName,
		"mailAddr":    m.MailingAddress,
		"mailZip":     m.MailingZip,
		"phone":       m.OwnerPhone,
		"parish":      m.Parish,
		"land":        m.LandValue,
		"impr":        m.ImprovementValue,
		"acres":       m.LotSizeAcres,
		"adj":         m.Adjudicated,
		"yearsDelinq": m.YearsDelinquent,
		"situsAddr":   m.SitusAddress,
		"situsCity":   m.SitusCity,
		"situsState":  m.SitusState,
		"situsZip":    m.SitusZip,
		"email":       m.OwnerEmail,
	}
	for k, idx := range want {
		if got[k] != idx {
			t.Errorf("%s column = %d, want %d", k, got[k], idx)
		}
	}
}

func TestMapHeader_FirstColumnWins(t *testing.T) {
	m, err := MapHeader([]string{"parcel_id", "Parcel Number", "owner"})
	if err != nil {
		t.Fatalf("MapHeader: %v", err)
	}
	if m.ParcelNumber != 0 {
		t.Errorf("ParcelNumber column = %d, want 0", m.ParcelNumber)
	}
}

func TestMapHeader_MissingIdentityColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   string
	}{
		{"no parcel", []string{"owner", "acres"}, "parcel number"},
		{"no owner", []string{"apn", "acres"}, "owner name"},
		{"neither", []string{"acres", "zip"}, "parcel number and owner name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapHeader(tt.header)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestMappingRow(t *testing.T) {
	m, err := MapHeader([]string{
		"Parcel Number", "Owner Name", "Parish", "Mailing Address", "Zip",
		"Land Value", "Acres", "Adjudicated", "Years Delinquent",
	})
	if err != nil {
		t.Fatalf("MapHeader: %v", err)
	}

	row := m.Row([]string{
		" 123-456 ", "SMITH JOHN A", "CADDO", "12 OAK ST", "71101",
		"$45,000.00", "5.25", "Y", "3",
	})

	if row.ParcelNumber != "123-456" {
		t.Errorf("ParcelNumber = %q", row.ParcelNumber)
	}
	if row.OwnerName != "SMITH JOHN A" {
		t.Errorf("OwnerName = %q", row.OwnerName)
	}
	if row.Parish != "CADDO" {
		t.Errorf("Parish = %q", row.Parish)
	}
	if row.MailingZip != "71101" {
		t.Errorf("MailingZip = %q", row.MailingZip)
	}
	if row.LandValue != 45000 {
		t.Errorf("LandValue = %v, want 45000", row.LandValue)
	}
	if row.LotSizeAcres != 5.25 {
		t.Errorf("LotSizeAcres = %v, want 5.25", row.LotSizeAcres)
	}
	if !row.IsAdjudicated {
		t.Error("IsAdjudicated = false, want true")
	}
	if row.YearsDelinquent != 3 {
		t.Errorf("YearsDelinquent = %d, want 3", row.YearsDelinquent)
	}
}

func TestMappingRow_ShortRecord(t *testing.T) {
	m, err := MapHeader([]string{"apn", "owner", "acres"})
	if err != nil {
		t.Fatalf("MapHeader: %v", err)
	}
	row := m.Row([]string{"42"})
	if row.ParcelNumber != "42" {
		t.Errorf("ParcelNumber = %q, want 42", row.ParcelNumber)
	}
	if row.OwnerName != "" || row.LotSizeAcres != 0 {
		t.Errorf("short record should read empty, got owner=%q acres=%v", row.OwnerName, row.LotSizeAcres)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$45,000.00", 45000},
		{"12500", 12500},
		{" 1 250 ", 1250},
		{"5.25", 5.25},
		{"", 0},
		{"N/A", 0},
	}
	for _, tt := range tests {
		if got := parseNumber(tt.in); got != tt.want {
			t.Errorf("parseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	trues := []string{"1", "TRUE", "t", "Yes", "Y", "ADJUDICATED", "adj"}
	for _, s := range trues {
		if !parseFlag(s) {
			t.Errorf("parseFlag(%q) = false, want true", s)
		}
	}
	falses := []string{"", "0", "no", "N", "active"}
	for _, s := range falses {
		if parseFlag(s) {
			t.Errorf("parseFlag(%q) = true, want false", s)
		}
	}
}
