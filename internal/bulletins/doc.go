// Package bulletins watches parish bulletin feeds for the notices that
// matter to land acquisition: adjudication lists, tax sales, sheriff
// sales. Matching items become background task records and a channel
// ping so an operator can pull the new list the same day instead of
// finding it at the next roll ingest.
//
// Each feed carries a cursor (the newest GUID already seen); polls are
// idempotent across restarts. Feeds that keep failing back off
// exponentially so one dead county site does not burn the poll budget.
package bulletins
