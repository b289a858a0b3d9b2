// Package telemetry ingests gameplay messages from surfaces.
//
// STATE_UPDATE and FLOW_COMPLETE become progress sessions; FLOW_COMPLETE
// also produces flow_complete and score_update analytics events. Work that
// outlives the message, like waiting for a percentile, is bound to the
// card's lifetime so its result is dropped once the card is torn down.
package telemetry
