package skills

import (
	"context"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "first-skill", "id: first-skill\ndescription: d\n", "body")

	reg, err := NewRegistry(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	w := NewWatcher(reg, WithWatchInterval(10*time.Millisecond))
	reloaded := make(chan struct{}, 1)
	w.OnReload(func(*Registry) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	writeSkill(t, root, "second-skill", "id: second-skill\ndescription: d\n", "body")

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload after skill change")
	}

	if reg.Len() != 2 {
		t.Fatalf("expected 2 skills after reload, got %d", reg.Len())
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "only-skill", "id: only-skill\ndescription: d\n", "body")

	reg, err := NewRegistry(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	done := make(chan struct{})
	go func() {
		NewWatcher(reg).Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop without Start blocked")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "only-skill", "id: only-skill\ndescription: d\n", "body")

	reg, err := NewRegistry(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	w := NewWatcher(reg, WithWatchInterval(10*time.Millisecond))
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
