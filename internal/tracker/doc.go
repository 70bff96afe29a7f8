// Package tracker maintains a locally-accurate view of a network's scheduled
// broadcast lifecycle: countdowns for pending broadcasts, a bounded display
// window for sent ones, and exactly-once seen acknowledgement against the
// backend.
//
// The classifier, countdown formatter and visibility window are pure
// functions; Service wraps them in two 1-second loops (a local countdown
// tick and a conditional list poll) with a shared Start/Stop lifecycle.
package tracker
