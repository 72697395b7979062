package coordinator

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/vivotherm/internal/entry"
)

// EscalateAfter is the failure streak from which LogReporter logs at error level.
const EscalateAfter = 3

// Reporter receives steady-state polling diagnostics.
type Reporter interface {
	// PollFailed is called after each failed cycle with the current failure streak.
	PollFailed(e entry.Entry, err error, consecutive int)
	// PollRecovered is called on the first success after failures.
	PollRecovered(e entry.Entry, failures int)
}

// LogReporter reports through logrus.
type LogReporter struct {
	logger *logrus.Logger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *logrus.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) PollFailed(e entry.Entry, err error, consecutive int) {
	log := r.logger.WithFields(logrus.Fields{
		"entry_id":    e.ID,
		"address":     e.Address(),
		"consecutive": consecutive,
		"error":       err,
	})
	if consecutive >= EscalateAfter {
		log.Error("Poll failed repeatedly, keeping last good snapshot")
		return
	}
	log.Warn("Poll failed, keeping last good snapshot")
}

func (r *LogReporter) PollRecovered(e entry.Entry, failures int) {
	r.logger.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"address":  e.Address(),
		"failures": failures,
	}).Info("Poll recovered")
}
