// Package ratelog rate-limits repetitive log lines by category, so a
// hot-looping failure (a dead peer, a full pool) logs at most once per
// window instead of flooding the log.
package ratelog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Limiter rate-limits log emission independently per category string.
type Limiter struct {
	log    *logrus.Logger
	window time.Duration
	mu     sync.Mutex
	byKey  map[string]*rate.Limiter
}

// New creates a Limiter that allows at most one log line per category every
// window (e.g. one per 30s).
func New(log *logrus.Logger, window time.Duration) *Limiter {
	return &Limiter{
		log:    log,
		window: window,
		byKey:  make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) allow(category string) bool {
	l.mu.Lock()
	lim, ok := l.byKey[category]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.window), 1)
		l.byKey[category] = lim
	}
	l.mu.Unlock()
	// A new limiter starts with one token, so the first occurrence of a
	// category always logs and consumes it.
	return lim.Allow()
}

// Warnf logs at warning level, at most once per window per category.
func (l *Limiter) Warnf(category, format string, args ...any) {
	if l.allow(category) {
		l.log.Warnf(format, args...)
	}
}

// Debugf logs at debug level, at most once per window per category.
func (l *Limiter) Debugf(category, format string, args ...any) {
	if l.allow(category) {
		l.log.Debugf(format, args...)
	}
}

// Errorf logs at error level, at most once per window per category.
func (l *Limiter) Errorf(category, format string, args ...any) {
	if l.allow(category) {
		l.log.Errorf(format, args...)
	}
}
