package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jfmyers9/crate/internal/store"
	"github.com/rs/zerolog"
)

// DefaultDebounce suppresses repeated reads of a tag left on the reader.
const DefaultDebounce = 3 * time.Second

// MaxLineLength caps a single tag line. Longer lines are line noise and
// are skipped whole.
const MaxLineLength = 4096

// LineReader publishes one scan per newline-terminated tag read from r,
// typically a serial reader opened as a file or stdin.
type LineReader struct {
	r         io.Reader
	publisher Publisher
	debounce  time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	lastTag  string
	lastTime time.Time
}

// NewLineReader creates a LineReader. A debounce of zero disables debouncing.
func NewLineReader(r io.Reader, publisher Publisher, debounce time.Duration, logger zerolog.Logger) *LineReader {
	return &LineReader{
		r:         r,
		publisher: publisher,
		debounce:  debounce,
		now:       time.Now,
		logger:    logger.With().Str("component", "reader").Logger(),
	}
}

// OpenDevice opens a reader device (or "-" for stdin) for a LineReader.
func OpenDevice(path string) (io.ReadCloser, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reader device: %w", err)
	}
	return f, nil
}

// Run reads until EOF or until ctx is cancelled. If the underlying reader
// is an io.Closer it is closed on cancellation to unblock the read.
// Lines longer than MaxLineLength are skipped; a read error ends Run.
func (l *LineReader) Run(ctx context.Context) error {
	if c, ok := l.r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	br := bufio.NewReaderSize(l.r, MaxLineLength)
	for {
		line, isPrefix, err := br.ReadLine()
		if err == nil && isPrefix {
			skipped := len(line)
			for isPrefix && err == nil {
				line, isPrefix, err = br.ReadLine()
				skipped += len(line)
			}
			l.logger.Warn().Int("bytes", skipped).Msg("Skipped oversized line")
			if err == nil {
				continue
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read tags: %w", err)
		}
		l.handleLine(ctx, string(line))
	}
}

func (l *LineReader) handleLine(ctx context.Context, line string) {
	tag := store.NormalizeTag(line)
	if tag == "" {
		return
	}

	now := l.now()
	if l.debounce > 0 && tag == l.lastTag && now.Sub(l.lastTime) < l.debounce {
		l.logger.Debug().Str("tag", tag).Msg("Debounced duplicate scan")
		return
	}
	l.lastTag = tag
	l.lastTime = now

	ev, err := l.publisher.Publish(ctx, tag, store.SourceReader)
	if err != nil {
		l.logger.Error().Err(err).Str("tag", tag).Msg("Failed to publish scan")
		return
	}
	l.logger.Info().Str("tag", ev.TagID).Str("event", ev.ID).Msg("Tag scanned")
}
