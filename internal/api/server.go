// Package api exposes the album mapping, scan intake, scan history and a
// live outcome feed over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jfmyers9/crate/internal/catalog"
	"github.com/jfmyers9/crate/internal/relay"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// AlbumRepository is the mapping table.
type AlbumRepository interface {
	Resolve(ctx context.Context, tagID string) (*store.Album, error)
	Upsert(ctx context.Context, album store.Album) error
	Delete(ctx context.Context, tagID string) error
	List(ctx context.Context) ([]store.Album, error)
}

// HistoryLister lists recent scan outcomes.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]store.HistoryEntry, error)
}

// BarcodeLookup finds a release by barcode.
type BarcodeLookup interface {
	LookupBarcode(ctx context.Context, barcode string) (*catalog.Release, error)
}

// Config wires the API to its collaborators. Catalog may be nil.
type Config struct {
	Albums    AlbumRepository
	Publisher relay.Publisher
	History   HistoryLister
	Catalog   BarcodeLookup
	Hub       *Hub
	Token     string
	Logger    zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	albums    AlbumRepository
	publisher relay.Publisher
	history   HistoryLister
	catalog   BarcodeLookup
	hub       *Hub
	token     string
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger.With().Str("component", "api").Logger()
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(cfg.Logger)
	}
	return &Server{
		albums:    cfg.Albums,
		publisher: cfg.Publisher,
		history:   cfg.History,
		catalog:   cfg.Catalog,
		hub:       hub,
		token:     cfg.Token,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Hub returns the outcome hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": s.hub.Count()})
	})

	protected := router.Group("/")
	protected.Use(BearerAuth(s.token))
	protected.GET("/ws", s.websocket)

	api := protected.Group("/api")
	api.GET("/albums", s.listAlbums)
	api.GET("/albums/:tag", s.getAlbum)
	api.PUT("/albums/:tag", s.putAlbum)
	api.DELETE("/albums/:tag", s.deleteAlbum)
	api.POST("/scans", s.postScan)
	api.GET("/history", s.listHistory)
	api.GET("/lookup", s.lookup)

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http api shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP API stopped")
	return ctx.Err()
}

func (s *Server) listAlbums(c *gin.Context) {
	albums, err := s.albums.List(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": albums})
}

func (s *Server) getAlbum(c *gin.Context) {
	album, err := s.albums.Resolve(c.Request.Context(), c.Param("tag"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if album == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no album mapped to tag"})
		return
	}
	c.JSON(http.StatusOK, album)
}

type putAlbumReq struct {
	TagID  string `json:"tagId"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Owner  string `json:"owner"`
}

func (s *Server) putAlbum(c *gin.Context) {
	var req putAlbumReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	tag := store.NormalizeTag(c.Param("tag"))
	if req.TagID != "" && store.NormalizeTag(req.TagID) != tag {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tagId does not match path"})
		return
	}

	album := store.Album{TagID: tag, Artist: req.Artist, Album: req.Album, Owner: req.Owner}
	if err := s.albums.Upsert(c.Request.Context(), album); err != nil {
		if errors.Is(err, store.ErrInvalidAlbum) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.internalError(c, err)
		return
	}

	saved, err := s.albums.Resolve(c.Request.Context(), tag)
	if err != nil || saved == nil {
		s.internalError(c, fmt.Errorf("failed to read back album %s: %v", tag, err))
		return
	}
	s.logger.Info().Str("tag", tag).Str("artist", saved.Artist).Str("album", saved.Album).Msg("Album mapped")
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteAlbum(c *gin.Context) {
	err := s.albums.Delete(c.Request.Context(), c.Param("tag"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no album mapped to tag"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type postScanReq struct {
	TagID string `json:"tagId"`
}

func (s *Server) postScan(c *gin.Context) {
	var req postScanReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ev, err := s.publisher.Publish(c.Request.Context(), req.TagID, store.SourceHTTP)
	if errors.Is(err, store.ErrEmptyTag) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tagId required"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}

func (s *Server) listHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (s *Server) lookup(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog lookup not configured"})
		return
	}

	release, err := s.catalog.LookupBarcode(c.Request.Context(), c.Query("barcode"))
	switch {
	case errors.Is(err, catalog.ErrEmptyBarcode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "barcode required"})
	case errors.Is(err, catalog.ErrNoMatch):
		c.JSON(http.StatusNotFound, gin.H{"error": "no release matches barcode"})
	case err != nil:
		s.logger.Warn().Err(err).Msg("Catalog lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog lookup failed"})
	default:
		c.JSON(http.StatusOK, release)
	}
}

func (s *Server) websocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.hub.Add(ws)
	s.logger.Debug().Str("client", c.ClientIP()).Msg("Websocket client connected")

	// Incoming messages are ignored; reading detects the disconnect.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Remove(ws)
	s.logger.Debug().Str("client", c.ClientIP()).Msg("Websocket client disconnected")
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
