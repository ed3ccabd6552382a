// Package discord shows the record that was just scrobbled as Discord Rich
// Presence for as long as the record would take to play.
package discord

import (
	"context"
	"time"

	"github.com/jfmyers9/crate/internal/processor"
	"github.com/jfmyers9/crate/internal/scrobbler"
	"github.com/rs/zerolog"
)

type rpcClient interface {
	SetActivity(Activity) error
	Close() error
}

// Presence is a processor.Notifier that sets Rich Presence for completed
// scans. Notify never blocks; Run does the Discord I/O.
type Presence struct {
	appID    string
	logger   zerolog.Logger
	client   rpcClient
	connect  func(string) (rpcClient, error)
	artwork  *artworkLookup
	outcomes chan processor.Outcome
	now      func() time.Time
}

func New(appID string, logger zerolog.Logger) *Presence {
	return &Presence{
		appID:  appID,
		logger: logger.With().Str("component", "discord").Logger(),
		connect: func(appID string) (rpcClient, error) {
			return ipcConnect(appID)
		},
		artwork:  newArtworkLookup(),
		outcomes: make(chan processor.Outcome, 4),
		now:      time.Now,
	}
}

// Notify queues a completed outcome for display. Other states are ignored,
// and outcomes arriving while the queue is full are dropped.
func (p *Presence) Notify(out processor.Outcome) {
	if out.State != processor.StateCompleted {
		return
	}
	select {
	case p.outcomes <- out:
	default:
		p.logger.Debug().Str("tag", out.TagID).Msg("Presence update dropped")
	}
}

// Run shows queued outcomes until ctx is cancelled. Presence is cleared
// once the record's running time has passed. If Discord isn't running the
// update is skipped and the connection retried on the next one.
func (p *Presence) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		expired <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			p.clearActivity()
			p.close()
			return ctx.Err()
		case out := <-p.outcomes:
			end, ok := p.show(ctx, out)
			if !ok {
				continue
			}
			stopTimer()
			timer = time.NewTimer(end.Sub(p.now()))
			expired = timer.C
		case <-expired:
			p.clearActivity()
			expired = nil
		}
	}
}

// show sets the activity for out and returns when it should be cleared.
func (p *Presence) show(ctx context.Context, out processor.Outcome) (time.Time, bool) {
	if err := p.ensureConnected(); err != nil {
		p.logger.Warn().Err(err).Msg("Discord not available")
		return time.Time{}, false
	}

	start := out.At
	if start.IsZero() {
		start = p.now()
	}
	end := start.Add(time.Duration(out.Submitted) * scrobbler.TrackSpacing)
	startUnix, endUnix := start.Unix(), end.Unix()

	var largeImage string
	if p.artwork != nil {
		largeImage = p.artwork.Lookup(ctx, out.Artist, out.Album)
	}

	err := p.client.SetActivity(Activity{
		Type:    activityListening,
		Name:    "crate",
		Details: out.Album,
		State:   "by " + out.Artist,
		Timestamps: &Timestamps{
			Start: &startUnix,
			End:   &endUnix,
		},
		Assets: &Assets{
			LargeImage: largeImage,
			LargeText:  out.Album,
			SmallImage: "crate",
			SmallText:  "crate",
		},
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to set activity")
		p.close()
		return time.Time{}, false
	}

	p.logger.Debug().Str("artist", out.Artist).Str("album", out.Album).Time("until", end).Msg("Presence set")
	return end, true
}

func (p *Presence) ensureConnected() error {
	if p.client != nil {
		return nil
	}
	client, err := p.connect(p.appID)
	if err != nil {
		return err
	}
	p.logger.Info().Msg("Connected to Discord")
	p.client = client
	return nil
}

func (p *Presence) clearActivity() {
	if p.client == nil {
		return
	}
	if err := p.client.SetActivity(Activity{}); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to clear activity")
		p.close()
	}
}

func (p *Presence) close() {
	if p.client == nil {
		return
	}
	_ = p.client.Close()
	p.client = nil
}
