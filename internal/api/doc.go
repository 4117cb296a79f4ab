// Package api exposes the engine over HTTP: lead inspection and manual
// outreach for operators, pipeline triggers, call-prep material, buyer
// management, and the Twilio webhooks. Everything under /api requires
// the X-API-Key header; webhooks authenticate with Twilio signatures
// instead, and /health is open.
package api
