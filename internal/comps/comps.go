// Package comps reads land sale comparables from the Snowflake
// warehouse. The warehouse is loaded out of band by the data team; this
// side only aggregates recent sales for a parish and acreage band into
// the per-acre figures deal sheets quote. Offer math never depends on
// it, so a cold warehouse degrades sheets instead of blocking them.
package comps

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // snowflake driver

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
)

// Client queries the comps warehouse. It satisfies the deal sheet's
// comps source.
type Client struct {
	db *sql.DB
}

// NewClient opens a warehouse connection from configuration. The pool is
// kept small; comps queries are occasional, not hot-path.
func NewClient(cfg config.CompsConfig) (*Client, error) {
	if cfg.Account == "" || cfg.User == "" {
		return nil, fmt.Errorf("comps: warehouse account not configured")
	}

	// user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("comps: open warehouse: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// Close releases the warehouse connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the warehouse connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Summary aggregates sales of similar-sized land in the parish over the
// last 18 months. Zero count means the band is empty, not an error.
func (c *Client) Summary(ctx context.Context, parish string, acres float64) (*domain.CompsSummary, error) {
	lo, hi := acreageBand(acres)

	query := `
		SELECT COUNT(*),
		       COALESCE(MEDIAN(sale_price / lot_size_acres), 0),
		       COALESCE(MIN(sale_price / lot_size_acres), 0),
		       COALESCE(MAX(sale_price / lot_size_acres), 0)
		FROM LAND_SALES
		WHERE UPPER(parish) = ?
		  AND lot_size_acres BETWEEN ? AND ?
		  AND sale_price > 0
		  AND lot_size_acres > 0
		  AND sale_date >= DATEADD(month, -18, CURRENT_DATE)
	`

	var s domain.CompsSummary
	err := c.db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(parish)), lo, hi).
		Scan(&s.Count, &s.MedianPerAcre, &s.LowPerAcre, &s.HighPerAcre)
	if err != nil {
		return nil, fmt.Errorf("comps: query sales: %w", err)
	}
	return &s, nil
}

// acreageBand widens around the subject acreage so thin rural markets
// still find comps: half the acreage either way, never narrower than an
// acre.
func acreageBand(acres float64) (lo, hi float64) {
	spread := acres * 0.5
	if spread < 1 {
		spread = 1
	}
	lo = acres - spread
	if lo < 0 {
		lo = 0
	}
	return lo, acres + spread
}
