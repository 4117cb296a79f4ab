package comps

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/acreage/leadline/internal/config"
)

func TestSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM LAND_SALES").
		WithArgs("CADDO", 2.5, 7.5).
		WillReturnRows(sqlmock.NewRows([]string{"count", "median", "low", "high"}).
			AddRow(7, 3500.0, 2100.0, 5200.0))

	c := &Client{db: db}
	s, err := c.Summary(context.Background(), " caddo ", 5)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Count != 7 || s.MedianPerAcre != 3500 || s.LowPerAcre != 2100 || s.HighPerAcre != 5200 {
		t.Errorf("summary = %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSummary_EmptyBand(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM LAND_SALES").
		WillReturnRows(sqlmock.NewRows([]string{"count", "median", "low", "high"}).
			AddRow(0, 0.0, 0.0, 0.0))

	c := &Client{db: db}
	s, err := c.Summary(context.Background(), "VERNON", 200)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Count != 0 {
		t.Errorf("count = %d, want 0", s.Count)
	}
}

func TestAcreageBand(t *testing.T) {
	tests := []struct {
		acres  float64
		lo, hi float64
	}{
		{5, 2.5, 7.5},
		{40, 20, 60},
		{1, 0, 2},     // floor widens to a full acre
		{0.5, 0, 1.5}, // lower bound clamps at zero
	}
	for _, tt := range tests {
		lo, hi := acreageBand(tt.acres)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("acreageBand(%v) = %v..%v, want %v..%v", tt.acres, lo, hi, tt.lo, tt.hi)
		}
	}
}

func TestNewClient_RequiresAccount(t *testing.T) {
	if _, err := NewClient(config.CompsConfig{}); err == nil {
		t.Fatal("expected error for unconfigured warehouse")
	}
}
