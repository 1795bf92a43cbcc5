package watcher

import (
	"context"
	"testing"
	"time"
)

func TestDoWatchFlushNormalBatch(t *testing.T) {
	now := time.Unix(100, 0)
	notifications, newLast := doWatchFlush("b1", []string{"id1", "id2"}, 0, 50, now, time.Time{})
	if len(notifications) != 3 {
		t.Fatalf("expected board + 2 card notifications, got %d", len(notifications))
	}
	if notifications[0].URI != "kanban://b1/board" {
		t.Fatalf("expected board notification first, got %q", notifications[0].URI)
	}
	if notifications[1].URI != "kanban://b1/cards/id1" || notifications[2].URI != "kanban://b1/cards/id2" {
		t.Fatalf("unexpected card notifications: %+v", notifications)
	}
	if !newLast.Equal(now) {
		t.Fatalf("expected newLastFlushTs=%v, got %v", now, newLast)
	}
}

func TestDoWatchFlushCapsAtMaxBatch(t *testing.T) {
	notifications, _ := doWatchFlush("b1", []string{"a", "b", "c"}, 0, 2, time.Now(), time.Time{})
	if len(notifications) != 3 { // board + 2 capped cards
		t.Fatalf("expected board + 2 capped card notifications, got %d", len(notifications))
	}
}

func TestDoWatchFlushOverflowStreakBoardOnly(t *testing.T) {
	notifications, _ := doWatchFlush("b1", []string{"a", "b"}, 3, 50, time.Now(), time.Time{})
	if len(notifications) != 1 {
		t.Fatalf("expected board-only notification at streak>=3, got %+v", notifications)
	}
	if notifications[0].URI != "kanban://b1/board" {
		t.Fatalf("expected board uri, got %q", notifications[0].URI)
	}
}

func TestExtractID(t *testing.T) {
	id, ok := extractID("/boards/x/.kanban/backlog/01HZXQJ9K8P7TFQJ0VYX5M7NDC__fix-login.md")
	if !ok || id != "01HZXQJ9K8P7TFQJ0VYX5M7NDC" {
		t.Fatalf("extractID failed: id=%q ok=%v", id, ok)
	}
	if _, ok := extractID("README.md"); ok {
		t.Fatal("expected no match for non-card filename")
	}
}

func TestHandleEventBuffersAndFlushes(t *testing.T) {
	var got []Notification
	w := New("b1", t.TempDir(), Config{HotColumns: []string{"backlog"}, Debounce: 10 * time.Millisecond, MaxBatch: 50}, func(n Notification) {
		got = append(got, n)
	})

	w.handleEvent([]string{"backlog/01HZXQJ9K8P7TFQJ0VYX5M7NDC__a.md"})
	if w.state != StateBuffering {
		t.Fatalf("expected buffering state, got %v", w.state)
	}

	time.Sleep(50 * time.Millisecond)
	if len(got) != 2 {
		t.Fatalf("expected board + 1 card notification after flush, got %d: %+v", len(got), got)
	}
}

func TestHandleEventOverflowIncrementsStreak(t *testing.T) {
	w := New("b1", t.TempDir(), Config{HotColumns: []string{"backlog"}, Debounce: time.Hour, MaxBatch: 50}, func(Notification) {})
	w.handleEvent(nil)
	w.handleEvent(nil)
	w.handleEvent(nil)
	if w.overflowStreak != 3 {
		t.Fatalf("expected overflowStreak=3, got %d", w.overflowStreak)
	}
	w.handleEvent([]string{"backlog/01HZXQJ9K8P7TFQJ0VYX5M7NDC__a.md"})
	if w.overflowStreak != 0 {
		t.Fatalf("expected a non-overflow event to reset streak, got %d", w.overflowStreak)
	}
}

func TestStartReportsAlreadyWatching(t *testing.T) {
	dir := t.TempDir()
	w := New("b1", dir, DefaultConfig(), func(Notification) {})

	ctx := context.Background()
	res, err := w.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.Started {
		t.Fatal("expected first Start to report started=true")
	}
	defer w.Stop()

	res2, err := w.Start(ctx)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if res2.Started || !res2.AlreadyWatching {
		t.Fatalf("expected second Start to report alreadyWatching, got %+v", res2)
	}
}
