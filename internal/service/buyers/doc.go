// Package buyers matches motivated-seller leads to cash buyers and
// blasts deal teasers to the best matches.
//
// Matching is a 100-point rubric over market, county, acreage, budget,
// buyer standing, and spread appetite. Blasting reuses the outreach
// attempt ledger for idempotency but not its TCPA gate: buyers opted in
// when they registered, and the cadence rules exist to protect sellers,
// not buyers.
package buyers
