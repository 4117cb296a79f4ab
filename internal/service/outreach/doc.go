// Package outreach is the single path for outbound SMS. Every send,
// whether from the nightly pipeline, a batch endpoint, or a manual API
// call, goes through the Dispatcher: TCPA gate, per-lead cooldown, daily
// budget, row-backed send lock, and an idempotency ledger that caps the
// fleet at one message per lead, context, and UTC day.
//
// The Pool fans dispatches over a bounded worker set for batch work; the
// Dispatcher alone serves one-off sends.
package outreach
