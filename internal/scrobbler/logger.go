package scrobbler

import "github.com/rs/zerolog"

// zerologAdapter satisfies lastfm.Logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (a zerologAdapter) Debugf(format string, args ...any) {
	a.logger.Debug().Msgf(format, args...)
}
