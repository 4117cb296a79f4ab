// Package enrich fills in what county rolls leave out: geocoded parcel
// coordinates, delivery point validation on owner mailing addresses, and
// third-party property facts for call prep.
//
// Every adapter sits behind a config flag and degrades to absent when
// disabled, so the pipeline runs the same with zero external accounts.
// Results are cached in memory for a day; failures are logged and the
// lead is simply left unenriched until the next pass.
package enrich
