package queue

import "github.com/scenarr/scenarr/internal/db"

// transitions lists the allowed status changes. completed and failed are
// terminal. add_failed returns to queued when a retry submission succeeds.
var transitions = map[db.QueueStatus][]db.QueueStatus{
	db.StatusQueued:      {db.StatusDownloading, db.StatusPaused, db.StatusCompleted, db.StatusFailed, db.StatusAddFailed},
	db.StatusDownloading: {db.StatusPaused, db.StatusCompleted, db.StatusFailed},
	db.StatusPaused:      {db.StatusDownloading, db.StatusCompleted, db.StatusFailed},
	db.StatusAddFailed:   {db.StatusQueued, db.StatusFailed},
}

// CanTransition reports whether an item may move from one status to another.
func CanTransition(from, to db.QueueStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// blockingStatuses hold a scene slot at acceptance time. An add_failed item
// keeps its slot until the retrier either resubmits it or gives up.
var blockingStatuses = append(append([]db.QueueStatus(nil), db.ActiveStatuses...), db.StatusAddFailed)
