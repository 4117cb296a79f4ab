// Package conversation turns inbound owner replies into lead state.
//
// Replies are classified keyword-first (STOP and its cousins never wait
// on a model), with an LLM fallback behind the shared circuit breaker
// for the ambiguous middle. The engine applies the verdict: opt-outs
// permanently gate the owner and draw one acknowledgement, positive
// intent promotes the lead to HOT and raises an alert, everything else
// nudges the followup cadence along.
package conversation
