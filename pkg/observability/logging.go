package observability

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks implements TrieHooks, CanonHooks, and TaskHooks by emitting
// debug-level events through a charmbracelet logger. It is the bundled
// backend for consumers that want visibility without writing their own
// hook implementations.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks creates hooks backed by the given logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	return &LogHooks{logger: logger}
}

// EnableLogging installs log-backed hooks for all categories, writing to w
// at the given level. Timestamps are formatted as "HH:MM:SS.cc" (hundredths
// of a second), matching
// the rest of the project's tooling.
func EnableLogging(w io.Writer, level log.Level) *LogHooks {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
	h := NewLogHooks(logger)
	SetTrieHooks(h)
	SetCanonHooks(h)
	SetTaskHooks(h)
	return h
}

// OnTailPromote implements TrieHooks.
func (h *LogHooks) OnTailPromote() {
	h.logger.Debug("trie tail promoted")
}

// OnWeakReclaim implements TrieHooks.
func (h *LogHooks) OnWeakReclaim() {
	h.logger.Debug("trie subtrie reclaimed")
}

// OnAdmitStart implements CanonHooks.
func (h *LogHooks) OnAdmitStart() {
	h.logger.Debug("admit start")
}

// OnAdmitComplete implements CanonHooks.
func (h *LogHooks) OnAdmitComplete(components int, duration time.Duration, err error) {
	if err != nil {
		h.logger.Error("admit failed", "components", components, "elapsed", duration.Round(time.Microsecond), "err", err)
		return
	}
	h.logger.Debug("admit complete", "components", components, "elapsed", duration.Round(time.Microsecond))
}

// OnPoolHit implements CanonHooks.
func (h *LogHooks) OnPoolHit() {
	h.logger.Debug("canon pool hit")
}

// OnPoolMiss implements CanonHooks.
func (h *LogHooks) OnPoolMiss() {
	h.logger.Debug("canon pool miss")
}

// OnSettle implements TaskHooks.
func (h *LogHooks) OnSettle(id string, rejected bool) {
	h.logger.Debug("task settled", "task", id, "rejected", rejected)
}

// OnAdopt implements TaskHooks.
func (h *LogHooks) OnAdopt(id string) {
	h.logger.Debug("task adopting thenable", "task", id)
}
