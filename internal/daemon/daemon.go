// Package daemon runs the scan pipeline: event sources, the relay poller,
// the processor and the optional HTTP API, until a shutdown signal.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jfmyers9/crate/internal/api"
	"github.com/jfmyers9/crate/internal/catalog"
	"github.com/jfmyers9/crate/internal/config"
	"github.com/jfmyers9/crate/internal/discord"
	"github.com/jfmyers9/crate/internal/processor"
	"github.com/jfmyers9/crate/internal/relay"
	"github.com/jfmyers9/crate/internal/scrobbler"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Daemon coordinates event sources, the poller and the processor
type Daemon struct {
	config *config.Config
	store  *store.Store

	events      *store.Events
	albums      *store.Albums
	credentials *store.Credentials
	history     *store.History

	poller    *relay.Poller
	publisher relay.Publisher
	processor *processor.Processor
	hub       *api.Hub
	presence  *discord.Presence

	logger zerolog.Logger
}

// New opens the store and wires the pipeline described by cfg
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	d := &Daemon{
		config:      cfg,
		store:       st,
		events:      store.NewEvents(st, cfg.AppID),
		albums:      store.NewAlbums(st, cfg.AppID),
		credentials: store.NewCredentials(st, cfg.AppID, cfg.UserID),
		history:     store.NewHistory(st, cfg.AppID),
		hub:         api.NewHub(logger),
		logger:      logger.With().Str("component", "daemon").Logger(),
	}

	if err := d.seedCredentials(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	notifiers := processor.Notifiers{d.hub}
	if cfg.DiscordAppID != "" {
		d.presence = discord.New(cfg.DiscordAppID, logger)
		notifiers = append(notifiers, d.presence)
	}

	d.poller = relay.NewPoller(d.events, cfg.PollDuration(), logger)
	d.publisher = relay.WakeOnPublish(d.events, d.poller)
	d.processor = processor.New(processor.Config{
		Events:      d.events,
		Albums:      d.albums,
		Credentials: d.credentials,
		NewScrobbler: processor.NewScrobblerFactory(scrobbler.Options{
			Username: cfg.LastFM.Username,
			BaseURL:  cfg.LastFM.BaseURL,
			Timeout:  cfg.LastFM.Timeout,
			Logger:   logger,
		}),
		History:  d.history,
		Notifier: notifiers,
		Logger:   logger,
	})

	return d, nil
}

// seedCredentials copies Last.fm keys present in the config file into the
// credential store so the processor only ever reads the store.
func (d *Daemon) seedCredentials(ctx context.Context) error {
	lf := d.config.LastFM
	if lf.APIKey != "" {
		err := d.credentials.Put(ctx, store.Credential{
			APIKey:    lf.APIKey,
			APISecret: lf.APISecret,
			Username:  lf.Username,
		})
		if err != nil {
			return fmt.Errorf("failed to seed credentials: %w", err)
		}
	}
	if lf.SessionKey != "" {
		if err := d.credentials.PutSession(ctx, store.Session{Key: lf.SessionKey, Name: lf.Username}); err != nil {
			return fmt.Errorf("failed to seed session: %w", err)
		}
	}
	return nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	return d.run(ctx)
}

// run supervises every component until ctx is cancelled or one fails
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().
		Str("app_id", d.config.AppID).
		Str("db", d.config.DBPath()).
		Msg("Starting daemon")

	var reader *relay.LineReader
	if d.config.Reader.Device != "" {
		dev, err := relay.OpenDevice(d.config.Reader.Device)
		if err != nil {
			return err
		}
		reader = relay.NewLineReader(dev, d.publisher, d.config.Reader.Debounce, d.logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	events := make(chan store.ScanEvent)

	g.Go(func() error {
		return d.poller.Run(gctx, events)
	})
	g.Go(func() error {
		return d.processor.Run(gctx, events)
	})

	if d.config.MQTT.Broker != "" {
		src := relay.NewMQTTSource(relay.MQTTConfig{
			Broker:   d.config.MQTT.Broker,
			Topic:    d.config.MQTT.Topic,
			Username: d.config.MQTT.Username,
			Password: d.config.MQTT.Password,
			ClientID: d.config.MQTT.ClientID,
			QoS:      byte(d.config.MQTT.QoS),
		}, d.publisher, d.logger)
		g.Go(func() error {
			return src.Run(gctx)
		})
	}

	if d.presence != nil {
		g.Go(func() error {
			return d.presence.Run(gctx)
		})
	}

	if d.config.HTTP.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		server := api.New(api.Config{
			Albums:    d.albums,
			Publisher: d.publisher,
			History:   d.history,
			Catalog:   d.catalogClient(),
			Hub:       d.hub,
			Token:     d.config.HTTP.Token,
			Logger:    d.logger,
		})
		g.Go(func() error {
			return server.Run(gctx, d.config.HTTP.Listen)
		})
	}

	if reader != nil {
		g.Go(func() error {
			// Losing the device stops only the reader; other sources keep working.
			err := reader.Run(gctx)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				d.logger.Error().Err(err).Str("device", d.config.Reader.Device).Msg("Reader stopped")
			default:
				d.logger.Warn().Str("device", d.config.Reader.Device).Msg("Reader device closed")
			}
			return nil
		})
	}

	err := g.Wait()
	d.logger.Info().Msg("Daemon stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Daemon) catalogClient() *catalog.Client {
	return catalog.New(catalog.Config{
		Token:   d.config.Catalog.Token,
		BaseURL: d.config.Catalog.BaseURL,
		Logger:  d.logger,
	})
}

// Shutdown prunes old history and closes the store
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if n, err := d.history.Cleanup(ctx, store.HistoryRetention); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cleanup scan history")
	} else if n > 0 {
		d.logger.Info().Int64("removed", n).Msg("Pruned scan history")
	}

	if err := d.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
