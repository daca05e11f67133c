package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sawolke/mcwake/events"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu   sync.Mutex
	seen []events.Event
}

func (r *recordingNotifier) Notify(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, e)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestBus_PublishDeliversToNotifiers(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	defer bus.Close()

	rec := &recordingNotifier{}
	bus.Subscribe(rec)

	bus.Publish(events.Event{Type: events.ServerReady, ServerID: "survival"})

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 delivered event, got %d", rec.count())
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish(events.Event{Type: events.ProxyError})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish appears to have blocked under load")
	}
}
