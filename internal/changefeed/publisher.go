package changefeed

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/notistore/pkg/logger"
	"github.com/charlesng35/notistore/pkg/metrics"
)

// Publisher delivers committed change events to a consumer.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f(ctx, event).
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

type sink struct {
	name      string
	publisher Publisher
}

// Fanout delivers every event to each registered sink. A failing sink does not stop the others.
type Fanout struct {
	mu    sync.RWMutex
	sinks []sink
}

// NewFanout constructs an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a named sink. Nil publishers are ignored.
func (f *Fanout) Add(name string, publisher Publisher) *Fanout {
	if publisher == nil {
		return f
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink{name: name, publisher: publisher})
	f.mu.Unlock()
	return f
}

// Sinks returns the registered sink names in order.
func (f *Fanout) Sinks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.name)
	}
	return names
}

// Publish hands event to every sink and combines their failures.
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	f.mu.RLock()
	sinks := append([]sink(nil), f.sinks...)
	f.mu.RUnlock()

	var errs error
	for _, s := range sinks {
		err := s.publisher.Publish(ctx, event)
		metrics.ChangeEvents.WithLabelValues(s.name, string(event.Type), metrics.Result(err)).Inc()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errs
}

// PublishAll publishes events in order, combining failures.
func PublishAll(ctx context.Context, publisher Publisher, events ...Event) error {
	if publisher == nil {
		return nil
	}
	var errs error
	for _, event := range events {
		errs = multierr.Append(errs, publisher.Publish(ctx, event))
	}
	return errs
}

// Emit publishes committed events and logs, but never returns, delivery failures.
func Emit(ctx context.Context, publisher Publisher, events ...Event) {
	if err := PublishAll(ctx, publisher, events...); err != nil {
		for _, cause := range multierr.Errors(err) {
			logger.WithModule("changefeed").Warn("change event delivery failed",
				zap.Int("events", len(events)),
				zap.Error(cause),
			)
		}
	}
}
