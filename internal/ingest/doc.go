// Package ingest streams county tax rolls into the entity resolver.
//
// Rolls arrive as CSV exports with no standard column order and headers
// that drift between parishes and years ("Assessment No", "parcel_id",
// "PARCEL NUMBER"). The mapper auto-detects columns from a header alias
// table so operators never hand-write field mappings. Rows are parsed
// tolerantly: a malformed record is counted and logged, never fatal, so
// one bad line cannot sink a 100k-row roll.
//
// Sources are addressed by URL. Plain paths and file:// read from local
// disk, s3:// streams from a bucket, and .gz sources are decompressed on
// the fly.
package ingest
