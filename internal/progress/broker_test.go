package progress

import (
	"context"
	"testing"
	"time"

	"cvrpbench/internal/opt"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	ch, err := b.Subscribe(context.Background(), "toy")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	evt := Event{Instance: "toy", Solver: "ga", Iteration: 3, BestFitness: 42}
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.Solver != "ga" || got.BestFitness != 42 {
			t.Fatalf("bad event: %+v", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	// other instances are not delivered
	_ = b.Publish(context.Background(), Event{Instance: "other"})
	select {
	case got := <-ch:
		t.Fatalf("unexpected event %+v", got)
	default:
	}

	b.Unsubscribe("toy", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestMemoryDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewMemory()
	ch, err := b.Subscribe(context.Background(), "toy")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for i := 0; i < 100; i++ {
		_ = b.Publish(context.Background(), Event{Instance: "toy", Iteration: i})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("want full buffer %d, got %d", cap(ch), len(ch))
	}
}

type recorder struct{ events []Event }

func (r *recorder) Publish(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return nil
}

func TestThrottledDropsBurstsButKeepsDone(t *testing.T) {
	rec := &recorder{}
	th := NewThrottled(rec, 0.001, 2)
	for i := 0; i < 10; i++ {
		_ = th.Publish(context.Background(), Event{Instance: "toy", Iteration: i})
	}
	_ = th.Publish(context.Background(), Event{Instance: "toy", Done: true})

	if len(rec.events) != 3 {
		t.Fatalf("want 2 burst events + done, got %d", len(rec.events))
	}
	if !rec.events[2].Done {
		t.Fatalf("done event must pass the limiter")
	}
	if th.Dropped() != 8 {
		t.Fatalf("want 8 dropped, got %d", th.Dropped())
	}
}

func TestObserverAdaptsProgress(t *testing.T) {
	rec := &recorder{}
	obs := Observer(context.Background(), rec, "A-n32-k5", 4)
	obs(opt.Progress{Solver: "ts", Iteration: 10, BestFitness: 800, Done: true})
	if len(rec.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(rec.events))
	}
	got := rec.events[0]
	if got.Instance != "A-n32-k5" || got.Run != 4 || got.Solver != "ts" || !got.Done || got.At.IsZero() {
		t.Fatalf("bad event: %+v", got)
	}
}

func TestChannelName(t *testing.T) {
	if got := channelName("toy"); got != "cvrp:progress:toy" {
		t.Fatalf("got %s", got)
	}
}
