package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/service/resolve"
)

// RowResolver is the slice of the entity resolver the ingestor feeds.
type RowResolver interface {
	ResolveBatch(ctx context.Context, marketCode string, rows []resolve.RollRow, stats *resolve.Stats) error
}

// Summary reports one roll ingestion. Rows counts every data record in
// the source; Errors counts records that failed parsing or resolution.
type Summary struct {
	Source   string `json:"source"`
	Market   string `json:"market"`
	Rows     int64  `json:"rows"`
	NewLeads int64  `json:"new_leads"`
	Errors   int64  `json:"errors"`
}

// Ingestor streams roll sources through the column mapper into the
// resolver in fixed-size batches.
type Ingestor struct {
	batchSize int
	resolver  RowResolver
	sources   map[string]Source
}

// NewIngestor builds an ingestor. FileSource is always registered;
// callers add S3 or other sources when configured.
func NewIngestor(cfg config.IngestConfig, resolver RowResolver, extra ...Source) *Ingestor {
	size := cfg.BatchSize
	if size <= 0 {
		size = 500
	}
	sources := map[string]Source{"file": FileSource{}}
	for _, s := range extra {
		sources[s.Scheme()] = s
	}
	return &Ingestor{batchSize: size, resolver: resolver, sources: sources}
}

// IngestRoll opens the location, decompresses .gz payloads, and streams
// the records into the resolver under the given market.
func (ing *Ingestor) IngestRoll(ctx context.Context, marketCode, location string) (*Summary, error) {
	src, err := ing.sourceFor(location)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(strings.ToLower(location), ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("gunzip roll %s: %w", location, err)
		}
		defer gz.Close()
		r = gz
	}
	return ing.IngestReader(ctx, marketCode, location, r)
}

// IngestReader streams CSV records from r. Unreadable records are
// counted and sampled into the log; only an unusable header or context
// cancellation aborts the roll.
func (ing *Ingestor) IngestReader(ctx context.Context, marketCode, name string, r io.Reader) (*Summary, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("roll %s is empty", name)
	}
	if err != nil {
		return nil, fmt.Errorf("read roll header: %w", err)
	}
	mapping, err := MapHeader(header)
	if err != nil {
		return nil, fmt.Errorf("roll %s: %w", name, err)
	}

	var (
		stats       resolve.Stats
		parseErrors int64
		batch       = make([]resolve.RollRow, 0, ing.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := ing.resolver.ResolveBatch(ctx, marketCode, batch, &stats)
		batch = batch[:0]
		return err
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			parseErrors++
			if parseErrors <= 5 {
				logger.Warn("roll record unreadable", "source", name, "error", err)
			}
			continue
		}
		batch = append(batch, mapping.Row(record))
		if len(batch) >= ing.batchSize {
			if err := flush(); err != nil {
				return ing.summary(marketCode, name, &stats, parseErrors), err
			}
		}
	}
	if err := flush(); err != nil {
		return ing.summary(marketCode, name, &stats, parseErrors), err
	}

	sum := ing.summary(marketCode, name, &stats, parseErrors)
	logger.Info("roll ingested",
		"source", name,
		"market", marketCode,
		"rows", sum.Rows,
		"new_leads", sum.NewLeads,
		"errors", sum.Errors,
	)
	return sum, nil
}

func (ing *Ingestor) summary(marketCode, name string, stats *resolve.Stats, parseErrors int64) *Summary {
	return &Summary{
		Source:   name,
		Market:   marketCode,
		Rows:     stats.Rows.Load() + parseErrors,
		NewLeads: stats.NewLeads.Load(),
		Errors:   stats.Errors.Load() + parseErrors,
	}
}

func (ing *Ingestor) sourceFor(location string) (Source, error) {
	scheme := "file"
	if s, _, ok := strings.Cut(location, "://"); ok {
		scheme = s
	}
	src, ok := ing.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("no roll source for scheme %q", scheme)
	}
	return src, nil
}
