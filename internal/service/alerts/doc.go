// Package alerts pages humans about hot leads. Two entry points feed it:
// the nightly pass scans each market for HOT leads past the score
// threshold, and the conversation engine pushes a lead the moment a
// positive reply lands. Delivery fans out to every configured sink
// concurrently; one success is enough to stamp the lead alerted, so a
// flaky channel never re-pages through a healthy one.
package alerts
