// Package clipguard places secrets on the clipboard for a limited time.
//
// Only one secret is exposed at a time. When the exposure expires the guard
// clears the clipboard, unless the user has since copied something else.
package clipguard

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/schedule"
)

// DefaultTimeout is how long a copied secret stays on the clipboard.
const DefaultTimeout = 30 * time.Second

var ErrEmptySecret = errors.New("nothing to copy")

// Guard owns the single active clipboard exposure.
type Guard struct {
	backend Backend
	sched   schedule.Scheduler
	timeout time.Duration
	log     *zap.Logger
	macKey  []byte

	mu          sync.Mutex
	gen         uint64
	timer       schedule.Timer
	fingerprint []byte // nil when nothing is pending
	onClear     func(cleared bool)
}

// Option configures a Guard.
type Option func(*Guard)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithScheduler(s schedule.Scheduler) Option {
	return func(g *Guard) { g.sched = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.log = l }
}

// WithOnClear registers a callback run after every expiry or Close that had
// something pending. cleared is false when the clipboard was left alone.
func WithOnClear(fn func(cleared bool)) Option {
	return func(g *Guard) { g.onClear = fn }
}

// New returns a Guard writing to backend.
func New(backend Backend, opts ...Option) *Guard {
	g := &Guard{
		backend: backend,
		sched:   schedule.System,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
		macKey:  make([]byte, 32),
	}
	// crypto/rand.Read does not return an error since Go 1.24.
	_, _ = rand.Read(g.macKey)
	for _, o := range opts {
		o(g)
	}
	return g
}

// Timeout returns the configured exposure duration.
func (g *Guard) Timeout() time.Duration {
	return g.timeout
}

func (g *Guard) sum(s string) []byte {
	m := hmac.New(sha256.New, g.macKey)
	m.Write([]byte(s))
	return m.Sum(nil)
}

// Copy writes secret to the clipboard and arms the clear timer, replacing
// any pending exposure.
func (g *Guard) Copy(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.backend.WriteAll(secret); err != nil {
		return errors.Wrap(err, "copy to clipboard")
	}

	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.fingerprint = g.sum(secret)
	g.timer = g.sched.AfterFunc(g.timeout, func() { g.expire(gen) })
	g.log.Debug("clipboard armed", zap.Duration("timeout", g.timeout))
	return nil
}

// Pending reports whether a copied secret is awaiting its clear.
func (g *Guard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fingerprint != nil
}

func (g *Guard) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.fingerprint == nil {
		g.mu.Unlock()
		return
	}
	cleared, err := g.clearLocked()
	cb := g.onClear
	g.mu.Unlock()

	if err != nil {
		g.log.Warn("clipboard clear failed", zap.Error(err))
	}
	if cb != nil {
		cb(cleared)
	}
}

// clearLocked empties the clipboard if it still holds our secret, or if it
// cannot be read. It always drops the pending state.
func (g *Guard) clearLocked() (bool, error) {
	want := g.fingerprint
	g.fingerprint = nil
	g.timer = nil

	current, err := g.backend.ReadAll()
	if err == nil && subtle.ConstantTimeCompare(g.sum(current), want) != 1 {
		g.log.Debug("clipboard changed by user, leaving it")
		return false, nil
	}
	if err != nil {
		g.log.Debug("clipboard unreadable, clearing anyway", zap.Error(err))
	}
	if werr := g.backend.WriteAll(""); werr != nil {
		return false, errors.Wrap(werr, "clear clipboard")
	}
	g.log.Debug("clipboard cleared")
	return true, nil
}

// Close cancels the timer and clears a pending exposure immediately.
func (g *Guard) Close() error {
	g.mu.Lock()
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
	}
	if g.fingerprint == nil {
		g.mu.Unlock()
		return nil
	}
	cleared, err := g.clearLocked()
	cb := g.onClear
	g.mu.Unlock()

	if cb != nil {
		cb(cleared)
	}
	return err
}
