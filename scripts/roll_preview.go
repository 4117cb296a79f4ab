//go:build ignore
// +build ignore

// Roll Preview Tool
// Streams a county assessment roll CSV through the same header mapping and
// normalization the ingestor uses and reports what a real run would do,
// without touching the database.
//
// Usage:
//   go run scripts/roll_preview.go --file=/path/to/roll.csv
//   go run scripts/roll_preview.go --file=/path/to/roll.csv --sample=5
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/ingest"
	"github.com/acreage/leadline/internal/phone"
	"github.com/acreage/leadline/internal/service/resolve"
)

type previewStats struct {
	Rows          int64
	ParseErrors   int64
	MissingKeys   int64 // no parcel number or no owner name; the resolver rejects these
	UniqueParcels int
	UniqueParties int
	Textable      int64 // rows whose owner phone normalizes to a likely-mobile E.164
	Adjudicated   int64
	Delinquent    int64
	ParishCounts  map[string]int64
}

func main() {
	var (
		file   = flag.String("file", "", "path to the roll CSV (required)")
		sample = flag.Int("sample", 0, "print the first N mapped rows")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open roll: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		log.Fatalf("read header: %v", err)
	}
	mapping, err := ingest.MapHeader(header)
	if err != nil {
		log.Fatalf("map header: %v", err)
	}

	stats := previewStats{ParishCounts: make(map[string]int64)}
	parcels := make(map[string]struct{})
	parties := make(map[string]struct{})
	printed := 0
	start := time.Now()

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.ParseErrors++
			continue
		}
		stats.Rows++

		row := mapping.Row(record)
		parcelID := resolve.CanonicalParcelID(row.ParcelNumber)
		name := resolve.NormalizeName(row.OwnerName)
		if parcelID == "" || name == "" {
			stats.MissingKeys++
			continue
		}

		parcels[parcelID] = struct{}{}
		parties[resolve.MatchHash(name, resolve.NormalizeZip(row.MailingZip))] = struct{}{}

		if _, mobile := phone.NormalizeMobile(row.OwnerPhone); mobile {
			stats.Textable++
		}
		if row.IsAdjudicated {
			stats.Adjudicated++
		}
		if row.YearsDelinquent > 0 {
			stats.Delinquent++
		}
		if parish := strings.ToUpper(strings.TrimSpace(row.Parish)); parish != "" {
			stats.ParishCounts[parish]++
		}

		if printed < *sample {
			fmt.Printf("  sample: parcel=%s owner=%q zip=%s acres=%.2f\n",
				parcelID, row.OwnerName, row.MailingZip, row.LotSizeAcres)
			printed++
		}
	}

	stats.UniqueParcels = len(parcels)
	stats.UniqueParties = len(parties)

	fmt.Println()
	fmt.Println("Roll Preview")
	fmt.Println("============")
	fmt.Printf("File:             %s\n", *file)
	fmt.Printf("Elapsed:          %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Rows:             %d\n", stats.Rows)
	fmt.Printf("Parse errors:     %d\n", stats.ParseErrors)
	fmt.Printf("Missing keys:     %d (skipped by the resolver)\n", stats.MissingKeys)
	fmt.Printf("Unique parcels:   %d\n", stats.UniqueParcels)
	fmt.Printf("Unique parties:   %d\n", stats.UniqueParties)
	fmt.Printf("Textable phones:  %d\n", stats.Textable)
	fmt.Printf("Adjudicated:      %d\n", stats.Adjudicated)
	fmt.Printf("Tax delinquent:   %d\n", stats.Delinquent)

	if len(stats.ParishCounts) > 0 {
		names := make([]string, 0, len(stats.ParishCounts))
		for p := range stats.ParishCounts {
			names = append(names, p)
		}
		sort.Strings(names)
		fmt.Println("Parishes:")
		for _, p := range names {
			fmt.Printf("  %-24s %d\n", p, stats.ParishCounts[p])
		}
	}
}
