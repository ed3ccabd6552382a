// Package processor turns claimed scan events into album scrobbles.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jfmyers9/crate/internal/scrobbler"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/jfmyers9/crate/pkg/lastfm"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of a scan event.
type State string

const (
	StatePending    State = "pending"
	StateClaimed    State = "claimed"
	StateResolved   State = "resolved"
	StateUnresolved State = "unresolved"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateUnresolved, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

var (
	// ErrAuthenticationMissing is the failure cause when no usable Last.fm
	// credential or session is stored.
	ErrAuthenticationMissing = errors.New("processor: last.fm authentication missing")

	// ErrPartialAcceptance is the failure cause when Last.fm accepted fewer
	// scrobbles than were submitted.
	ErrPartialAcceptance = errors.New("processor: not every scrobble was accepted")
)

// DefaultTimeout bounds the handling of a single event.
const DefaultTimeout = 2 * time.Minute

// Outcome is the result of handling one scan event.
type Outcome struct {
	EventID   string
	TagID     string
	Source    string
	State     State
	Artist    string
	Album     string
	Submitted int
	Accepted  int
	Ignored   int
	Err       error
	At        time.Time
}

// HistoryEntry converts o into its persisted form.
func (o Outcome) HistoryEntry() store.HistoryEntry {
	entry := store.HistoryEntry{
		EventID:     o.EventID,
		TagID:       o.TagID,
		State:       string(o.State),
		Artist:      o.Artist,
		Album:       o.Album,
		Submitted:   o.Submitted,
		Accepted:    o.Accepted,
		Ignored:     o.Ignored,
		ProcessedAt: o.At,
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	return entry
}

// EventStore claims scan events.
type EventStore interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// MappingResolver maps tags to albums. An unknown tag yields (nil, nil).
type MappingResolver interface {
	Resolve(ctx context.Context, tagID string) (*store.Album, error)
}

// CredentialStore loads the stored Last.fm credential and session.
type CredentialStore interface {
	Get(ctx context.Context) (*store.Credential, error)
	GetSession(ctx context.Context) (*store.Session, error)
}

// Scrobbler fetches tracklists and submits batches.
type Scrobbler interface {
	FetchTracklist(ctx context.Context, artist, album string) ([]scrobbler.Track, error)
	Submit(ctx context.Context, batch *scrobbler.Batch) (scrobbler.Result, error)
}

// ScrobblerFactory builds a Scrobbler from the credentials loaded for an event.
type ScrobblerFactory func(cred store.Credential, sess store.Session) (Scrobbler, error)

// Recorder persists terminal outcomes.
type Recorder interface {
	Record(ctx context.Context, entry store.HistoryEntry) (int64, error)
}

// Notifier is told about every terminal outcome.
type Notifier interface {
	Notify(Outcome)
}

// Notifiers fans an outcome out to each of its members in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(out Outcome) {
	for _, n := range ns {
		n.Notify(out)
	}
}

// Config wires a Processor to its collaborators. History and Notifier are optional.
type Config struct {
	Events       EventStore
	Albums       MappingResolver
	Credentials  CredentialStore
	NewScrobbler ScrobblerFactory
	History      Recorder
	Notifier     Notifier

	Timeout time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

// Processor is the single consumer of scan events.
type Processor struct {
	events       EventStore
	albums       MappingResolver
	credentials  CredentialStore
	newScrobbler ScrobblerFactory
	history      Recorder
	notifier     Notifier
	timeout      time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// New creates a Processor.
func New(cfg Config) *Processor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Processor{
		events:       cfg.Events,
		albums:       cfg.Albums,
		credentials:  cfg.Credentials,
		newScrobbler: cfg.NewScrobbler,
		history:      cfg.History,
		notifier:     cfg.Notifier,
		timeout:      timeout,
		now:          now,
		logger:       cfg.Logger.With().Str("component", "processor").Logger(),
	}
}

// NewScrobblerFactory returns a ScrobblerFactory building scrobbler.Clients
// from stored credentials. Fields of base other than the keys are kept.
func NewScrobblerFactory(base scrobbler.Options) ScrobblerFactory {
	return func(cred store.Credential, sess store.Session) (Scrobbler, error) {
		opts := base
		opts.APIKey = cred.APIKey
		opts.APISecret = cred.APISecret
		opts.SessionKey = sess.Key
		if cred.Username != "" {
			opts.Username = cred.Username
		}
		return scrobbler.New(opts)
	}
}

// Run consumes events until ctx is done or the channel is closed. Events are
// handled one at a time; an event already being handled when ctx is
// cancelled runs to completion under its own timeout.
func (p *Processor) Run(ctx context.Context, events <-chan store.ScanEvent) error {
	p.logger.Info().Msg("Starting processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Processor stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				p.logger.Info().Msg("Event channel closed")
				return nil
			}
			p.process(ctx, ev)
		}
	}
}

func (p *Processor) process(ctx context.Context, ev store.ScanEvent) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	out := p.Handle(hctx, ev)
	if !out.State.Terminal() {
		return
	}

	p.logOutcome(out)

	if p.history != nil {
		if _, err := p.history.Record(hctx, out.HistoryEntry()); err != nil {
			p.logger.Error().Err(err).Str("event", out.EventID).Msg("Failed to record scan history")
		}
	}
	if p.notifier != nil {
		p.notifier.Notify(out)
	}
}

// Handle drives one event through claim, resolution and submission and
// returns where it ended. An event claimed by someone else comes back in
// StatePending with nothing done.
func (p *Processor) Handle(ctx context.Context, ev store.ScanEvent) Outcome {
	out := Outcome{
		EventID: ev.ID,
		TagID:   ev.TagID,
		Source:  ev.Source,
		State:   StatePending,
	}

	claimed, err := p.events.Claim(ctx, ev.ID)
	if err != nil {
		return p.fail(out, fmt.Errorf("failed to claim event: %w", err))
	}
	if !claimed {
		p.logger.Debug().Str("event", ev.ID).Msg("Event already claimed")
		return out
	}
	out.State = StateClaimed

	album, err := p.albums.Resolve(ctx, ev.TagID)
	if err != nil {
		return p.fail(out, fmt.Errorf("failed to resolve tag: %w", err))
	}
	if album == nil {
		out.State = StateUnresolved
		out.At = p.now()
		return out
	}
	out.State = StateResolved
	out.Artist = album.Artist
	out.Album = album.Album

	cred, sess, err := p.loadCredentials(ctx)
	if err != nil {
		return p.fail(out, err)
	}

	sc, err := p.newScrobbler(*cred, *sess)
	if err != nil {
		return p.fail(out, err)
	}

	tracks, err := sc.FetchTracklist(ctx, album.Artist, album.Album)
	if err != nil {
		return p.fail(out, err)
	}

	batch, err := scrobbler.BuildBatch(album.Artist, album.Album, tracks, sess.Key, p.now())
	if err != nil {
		return p.fail(out, err)
	}

	// Counts cover only the requests that completed before any error.
	result, err := sc.Submit(ctx, batch)
	out.Submitted = result.Submitted
	out.Accepted = result.Accepted
	out.Ignored = result.Ignored
	if err != nil {
		return p.fail(out, err)
	}

	if result.Accepted != len(batch.Entries) {
		return p.fail(out, fmt.Errorf("%w: %d of %d accepted, %d ignored",
			ErrPartialAcceptance, result.Accepted, len(batch.Entries), result.Ignored))
	}

	out.State = StateCompleted
	out.At = p.now()
	return out
}

func (p *Processor) loadCredentials(ctx context.Context) (*store.Credential, *store.Session, error) {
	cred, err := p.credentials.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cred == nil || cred.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: no api key stored", ErrAuthenticationMissing)
	}
	if cred.APISecret == "" {
		return nil, nil, fmt.Errorf("%w: %w", ErrAuthenticationMissing, lastfm.ErrNoAPISecret)
	}

	sess, err := p.credentials.GetSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil || sess.Key == "" {
		return nil, nil, fmt.Errorf("%w: %w", ErrAuthenticationMissing, lastfm.ErrNoSessionKey)
	}

	return cred, sess, nil
}

func (p *Processor) fail(out Outcome, err error) Outcome {
	out.State = StateFailed
	out.Err = err
	out.At = p.now()
	return out
}

func (p *Processor) logOutcome(out Outcome) {
	var event *zerolog.Event
	switch out.State {
	case StateCompleted:
		event = p.logger.Info()
	case StateUnresolved:
		event = p.logger.Warn()
	default:
		event = p.logger.Error().Err(out.Err)
	}

	event.
		Str("event", out.EventID).
		Str("tag", out.TagID).
		Str("source", out.Source).
		Str("state", string(out.State))

	if out.Artist != "" {
		event.Str("artist", out.Artist).Str("album", out.Album)
	}
	if out.Submitted > 0 {
		event.Int("submitted", out.Submitted).Int("accepted", out.Accepted).Int("ignored", out.Ignored)
	}

	switch out.State {
	case StateCompleted:
		event.Msg("Album scrobbled")
	case StateUnresolved:
		event.Msg("No album mapped to tag")
	default:
		event.Msg("Scan failed")
	}
}
