// Package resolve implements entity resolution for ingested county roll
// rows.
//
// County assessors publish the same parcel and owner under slightly
// different keys every year. The resolver collapses those variants onto
// stable identities: a canonical parcel id for properties, a match hash
// for owner parties. Re-ingesting the same roll is a no-op; a new roll
// for the same parish merges onto existing rows instead of duplicating
// them.
//
// The service layer contains the resolution logic and depends on the
// store interfaces defined in repository.go. It never imports
// database/sql directly.
package resolve
