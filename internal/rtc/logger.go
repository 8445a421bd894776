package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory adapts pion/logging to the process-wide zerolog logger so ICE
// and DTLS internals show up in the same stream as application logs.
type loggerFactory struct{}

func NewLoggerFactory() logging.LoggerFactory { return loggerFactory{} }

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveledLogger{log: log.With().Str("module", "pion."+scope).Logger()}
}

type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Trace(msg string)                  { l.log.Trace().Msg(msg) }
func (l leveledLogger) Tracef(f string, args ...any)      { l.log.Trace().Msgf(f, args...) }
func (l leveledLogger) Debug(msg string)                  { l.log.Debug().Msg(msg) }
func (l leveledLogger) Debugf(f string, args ...any)      { l.log.Debug().Msgf(f, args...) }
func (l leveledLogger) Info(msg string)                   { l.log.Info().Msg(msg) }
func (l leveledLogger) Infof(f string, args ...any)       { l.log.Info().Msgf(f, args...) }
func (l leveledLogger) Warn(msg string)                   { l.log.Warn().Msg(msg) }
func (l leveledLogger) Warnf(f string, args ...any)       { l.log.Warn().Msgf(f, args...) }
func (l leveledLogger) Error(msg string)                  { l.log.Error().Msg(msg) }
func (l leveledLogger) Errorf(f string, args ...any)      { l.log.Error().Msgf(f, args...) }
