// Package httputil holds the JSON response helpers shared by every
// handler. Handlers go through these instead of writing to the
// http.ResponseWriter directly so error envelopes and content types
// stay uniform across the API.
package httputil
