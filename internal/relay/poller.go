// Package relay delivers scan events from their producers to the processor.
//
// Producers (MQTT, the line reader, the HTTP API, the scan command) only
// insert rows into the event table. The Poller is the single path from that
// table to the processor's channel.
package relay

import (
	"context"
	"time"

	"github.com/jfmyers9/crate/internal/store"
	"github.com/rs/zerolog"
)

// DefaultBatch is how many pending events are read per poll.
const DefaultBatch = 50

// DefaultRedeliver is how long a delivered event may stay pending before it
// is offered again. The consumer claims an event as soon as it receives it,
// so an event still pending after this long had its claim fail.
const DefaultRedeliver = 30 * time.Second

// PendingLister lists unclaimed events, oldest first.
type PendingLister interface {
	Pending(ctx context.Context, limit int) ([]store.ScanEvent, error)
}

// Publisher records a scan of a tag.
type Publisher interface {
	Publish(ctx context.Context, tagID, source string) (store.ScanEvent, error)
}

// Poller polls the event table at regular intervals
type Poller struct {
	source    PendingLister
	interval  time.Duration
	batch     int
	redeliver time.Duration
	wake      chan struct{}
	sent      map[string]time.Time
	now       func() time.Time
	logger    zerolog.Logger
}

// NewPoller creates a new Poller instance
func NewPoller(source PendingLister, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		source:    source,
		interval:  interval,
		batch:     DefaultBatch,
		redeliver: DefaultRedeliver,
		wake:      make(chan struct{}, 1),
		sent:      make(map[string]time.Time),
		now:       time.Now,
		logger:    logger.With().Str("component", "poller").Logger(),
	}
}

// Wake asks for a poll as soon as possible instead of at the next tick.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run starts the polling loop and sends pending events to the provided
// channel. Each event is sent once while it stays pending, and again only
// if it is still pending after the redelivery delay.
// Blocks until context is cancelled
func (p *Poller) Run(ctx context.Context, events chan<- store.ScanEvent) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Msg("Starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Poll immediately on start
	p.poll(ctx, events)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, events)
		case <-p.wake:
			p.poll(ctx, events)
		}
	}
}

// poll reads pending events and sends the ones not yet delivered
func (p *Poller) poll(ctx context.Context, events chan<- store.ScanEvent) {
	pending, err := p.source.Pending(ctx, p.batch)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("Failed to list pending scans")
		}
		return
	}

	// Forget events that are no longer pending; they were claimed.
	live := make(map[string]struct{}, len(pending))
	for _, ev := range pending {
		live[ev.ID] = struct{}{}
	}
	for id := range p.sent {
		if _, ok := live[id]; !ok {
			delete(p.sent, id)
		}
	}

	for _, ev := range pending {
		if at, ok := p.sent[ev.ID]; ok {
			if p.now().Sub(at) < p.redeliver {
				continue
			}
			p.logger.Warn().
				Str("event", ev.ID).
				Str("tag", ev.TagID).
				Time("sent", at).
				Msg("Scan still pending, redelivering")
		}
		select {
		case events <- ev:
			p.sent[ev.ID] = p.now()
			p.logger.Debug().
				Str("event", ev.ID).
				Str("tag", ev.TagID).
				Str("source", ev.Source).
				Msg("Delivered scan")
		case <-ctx.Done():
			return
		}
	}
}

type wakingPublisher struct {
	Publisher
	poller *Poller
}

func (w wakingPublisher) Publish(ctx context.Context, tagID, source string) (store.ScanEvent, error) {
	ev, err := w.Publisher.Publish(ctx, tagID, source)
	if err == nil {
		w.poller.Wake()
	}
	return ev, err
}

// WakeOnPublish wraps pub so every successful publish triggers a poll.
func WakeOnPublish(pub Publisher, poller *Poller) Publisher {
	return wakingPublisher{Publisher: pub, poller: poller}
}
