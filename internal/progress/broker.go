// Package progress carries live search progress from running solvers to
// whoever is watching: an in-process subscriber or a Redis channel.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"cvrpbench/internal/opt"
)

// Event is one progress report of a solver run on an instance.
type Event struct {
	Instance    string    `json:"instance"`
	Solver      string    `json:"solver"`
	Run         int       `json:"run"`
	Iteration   int       `json:"iteration"`
	BestFitness float64   `json:"bestFitness"`
	Done        bool      `json:"done"`
	At          time.Time `json:"at"`
}

// Publisher sends events for an instance topic.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Broker is a Publisher that can also be subscribed to by instance name.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, instance string) (chan Event, error)
	Unsubscribe(instance string, ch chan Event)
	Close() error
}

// Memory fans events out to in-process subscribers. Slow subscribers miss
// events rather than block the solver.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(_ context.Context, instance string) (chan Event, error) {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[instance] == nil {
		b.subs[instance] = map[chan Event]struct{}{}
	}
	b.subs[instance][ch] = struct{}{}
	b.mu.Unlock()
	return ch, nil
}

func (b *Memory) Unsubscribe(instance string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[instance]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, instance)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Memory) Publish(_ context.Context, evt Event) error {
	b.mu.Lock()
	for ch := range b.subs[evt.Instance] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *Memory) Close() error { return nil }

// Fanout publishes every event to each of its members.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer adapts a Publisher to the solver progress callback. Publish
// errors are dropped; progress is best effort.
func Observer(ctx context.Context, pub Publisher, instance string, run int) opt.Observer {
	return func(p opt.Progress) {
		_ = pub.Publish(ctx, Event{
			Instance:    instance,
			Solver:      p.Solver,
			Run:         run,
			Iteration:   p.Iteration,
			BestFitness: p.BestFitness,
			Done:        p.Done,
			At:          time.Now(),
		})
	}
}
