package domain

// Intent is the classified meaning of an inbound reply.
type Intent string

const (
	IntentInterested    Intent = "INTERESTED"
	IntentNotInterested Intent = "NOT_INTERESTED"
	IntentAskingPrice   Intent = "ASKING_PRICE"
	IntentNegotiating   Intent = "NEGOTIATING"
	IntentScheduling    Intent = "SCHEDULING"
	IntentConfused      Intent = "CONFUSED"
	IntentStop          Intent = "STOP"
	IntentWrongNumber   Intent = "WRONG_NUMBER"
	IntentDeceased      Intent = "DECEASED"
	IntentSpam          Intent = "SPAM"
	IntentGreeting      Intent = "GREETING"
	IntentQuestion      Intent = "QUESTION"
)

// OptOutIntent reports whether the intent legally terminates outreach:
// the owner said stop, the number is wrong, or the owner is deceased.
func (i Intent) OptOutIntent() bool {
	return i == IntentStop || i == IntentWrongNumber || i == IntentDeceased
}

// PositiveIntent reports whether the intent marks the lead hot.
func (i Intent) PositiveIntent() bool {
	return i == IntentInterested || i == IntentAskingPrice
}

// Classification maps an intent onto the lead's reply classification.
func (i Intent) Classification() ReplyClassification {
	switch {
	case i.OptOutIntent():
		return ReplyDead
	case i == IntentNotInterested:
		return ReplyNotInterested
	case i == IntentInterested:
		return ReplyInterested
	case i == IntentAskingPrice:
		return ReplySendOffer
	default:
		return ReplyConfused
	}
}
