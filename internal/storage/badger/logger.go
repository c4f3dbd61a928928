package badger

import (
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
)

// badgerLogger forwards badger's internal logging to arbor
type badgerLogger struct {
	logger arbor.ILogger
}

var _ badgerdb.Logger = (*badgerLogger)(nil)

func newBadgerLogger(logger arbor.ILogger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Str("component", "badger").Msgf(trimNewline(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Str("component", "badger").Msgf(trimNewline(format), args...)
}

// Info is noisy during compaction, keep it at debug
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Str("component", "badger").Msgf(trimNewline(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Str("component", "badger").Msgf(trimNewline(format), args...)
}

func trimNewline(format string) string {
	return strings.TrimSuffix(format, "\n")
}
