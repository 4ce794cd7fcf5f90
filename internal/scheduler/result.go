package scheduler

import (
	"github.com/neexbeast/campwatch/internal/availability"
)

// Outcome is how a tick ended.
type Outcome string

const (
	OutcomeNotFound    Outcome = "not_found"
	OutcomeStoreFailed Outcome = "store_failed"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeNoMatches   Outcome = "no_matches"
	OutcomeNotified    Outcome = "notified"

	// OutcomeSkipped marks a scheduled firing dropped because a tick for the
	// same watcher was still running.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAborted marks a tick whose context ended before a slot freed up.
	OutcomeAborted  Outcome = "aborted"
	OutcomePanicked Outcome = "panicked"
)

// TickResult describes one completed tick.
type TickResult struct {
	WatcherID int64                 `json:"watcher_id"`
	Outcome   Outcome               `json:"outcome"`
	Matches   []availability.Record `json:"matches"`
	Score     float64               `json:"score"`
	Err       error                 `json:"-"`
}
