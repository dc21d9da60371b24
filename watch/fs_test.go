package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type mockNotifier struct {
	mu    sync.Mutex
	calls []string // "subID:path"
}

func (n *mockNotifier) NotifyChange(ctx context.Context, subID, path string) error {
	n.mu.Lock()
	n.calls = append(n.calls, subID+":"+path)
	n.mu.Unlock()
	return nil
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func TestFSWatcher_NotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	w := NewFSWatcher()
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	n := &mockNotifier{}
	id, err := w.Subscribe(dir, n)
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty subscription id")
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n.count() == 0 {
		t.Fatal("expected a change notification")
	}
}

func TestFSWatcher_DebouncesRapidChanges(t *testing.T) {
	dir := t.TempDir()
	w := NewFSWatcher()
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	n := &mockNotifier{}
	if _, err := w.Subscribe(dir, n); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte{byte(i)}, 0644); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(300 * time.Millisecond)

	if got := n.count(); got == 0 || got >= 5 {
		t.Errorf("expected coalesced notifications, got %d", got)
	}
}

func TestFSWatcher_UnsubscribeStopsNotifications(t *testing.T) {
	dir := t.TempDir()
	w := NewFSWatcher()
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	n := &mockNotifier{}
	id, err := w.Subscribe(dir, n)
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	w.Unsubscribe(id)
	w.Unsubscribe(id) // unknown id is ignored

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)

	if n.count() != 0 {
		t.Errorf("expected no notifications after unsubscribe, got %d", n.count())
	}
}

func TestFSWatcher_SubscribeMissingPath(t *testing.T) {
	w := NewFSWatcher()
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if _, err := w.Subscribe(filepath.Join(t.TempDir(), "missing"), &mockNotifier{}); err == nil {
		t.Error("expected error for missing path")
	}
}
