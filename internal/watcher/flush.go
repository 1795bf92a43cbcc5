package watcher

import "time"

// Notification is one outbound notifications/publish payload (spec.md §6).
type Notification struct {
	URI string
}

func boardURI(board string) string { return "kanban://" + board + "/board" }
func cardURI(board, id string) string { return "kanban://" + board + "/cards/" + id }

// doWatchFlush is the pure flush-decision function of spec.md §4.8: given
// the board, the buffered ids (insertion order, already deduped), the
// current overflow streak, the batch cap, and the current/previous flush
// timestamps, it returns the notifications to emit and the timestamp to
// remember as the new "last flush" marker. It has no side effects so the
// debounce/overflow logic is unit-testable without a real filesystem.
func doWatchFlush(board string, ids []string, overflowStreak, maxBatch int, nowTs, lastFlushTs time.Time) ([]Notification, time.Time) {
	_ = lastFlushTs // threaded through for caller bookkeeping only

	notifications := []Notification{{URI: boardURI(board)}}
	if overflowStreak >= 3 {
		return notifications, nowTs
	}

	limit := ids
	if maxBatch > 0 && len(limit) > maxBatch {
		limit = limit[:maxBatch]
	}
	for _, id := range limit {
		notifications = append(notifications, Notification{URI: cardURI(board, id)})
	}
	return notifications, nowTs
}
