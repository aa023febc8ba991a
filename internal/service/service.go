// Package service implements the vault session: the Locked/Unlocked state
// machine that owns the master key and the decrypted record set.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/vaultkeeper/auth"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/audit"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/clipguard"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/schedule"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
	"github.com/Hussein-Mazeh/vaultkeeper/krypto"
	"github.com/Hussein-Mazeh/vaultkeeper/store"
)

// DefaultAutoLock is the inactivity timeout used when none is configured.
const DefaultAutoLock = 5 * time.Minute

var (
	ErrLocked          = errors.New("vault locked")
	ErrAlreadyUnlocked = errors.New("a vault is already unlocked")
	ErrVaultExists     = errors.New("vault file already exists")
	ErrCooldown        = errors.New("too many failed unlock attempts")
	ErrNoClipboard     = errors.New("no clipboard configured")

	// Re-exported so callers only need this package to classify outcomes.
	ErrAuthFailure        = krypto.ErrAuthFailure
	ErrNotFound           = store.ErrNotFound
	ErrCorrupted          = store.ErrCorrupted
	ErrVersionUnsupported = store.ErrVersionUnsupported
	ErrIO                 = store.ErrIO
	ErrRecordNotFound     = vault.ErrRecordNotFound
	ErrCategoryNotFound   = vault.ErrCategoryNotFound
)

// saveFile is replaced in tests to hold a save in flight.
var saveFile = store.Save

// State is the session lifecycle state.
type State int

const (
	Locked State = iota
	Unlocked
)

func (s State) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// LockReason records why the session is (or last became) locked.
type LockReason int

const (
	ReasonInitial LockReason = iota
	ReasonExplicit
	ReasonInactivity
	ReasonAuthFailure
	ReasonError
)

func (r LockReason) String() string {
	switch r {
	case ReasonExplicit:
		return "explicit"
	case ReasonInactivity:
		return "inactivity"
	case ReasonAuthFailure:
		return "auth_failure"
	case ReasonError:
		return "error"
	default:
		return "initial"
	}
}

// Status is a snapshot of the session for display.
type Status struct {
	State    State
	Reason   LockReason
	Path     string
	Records  int
	Deadline time.Time // zero when auto-lock is off or the session is locked
}

// Auditor receives lifecycle events. *audit.Log implements it.
type Auditor interface {
	Record(ctx context.Context, e audit.Event) error
	Failures(ctx context.Context, vault string, since time.Time) ([]time.Time, error)
}

// Session holds at most one unlocked vault. The zero value is not usable; call New.
type Session struct {
	log      *zap.Logger
	sched    schedule.Scheduler
	autoLock time.Duration
	kdf      krypto.KDFParams
	policy   auth.Policy
	audit    Auditor
	clip     *clipguard.Guard
	onLock   func(LockReason)
	throttle auth.ThrottleSettings

	// unlockMu serializes Unlock, CreateVault and ChangePassphrase so the
	// slow key derivation can run without holding mu.
	unlockMu  sync.Mutex
	throttles map[string]*auth.Throttle

	mu       sync.Mutex
	state    State
	reason   LockReason
	epoch    uint64 // bumped on every unlock
	path     string
	file     vault.File // header of the open vault; Nonce and Ciphertext track the last save
	key      *memguard.LockedBuffer
	data     *vault.Payload
	gen      uint64
	timer    schedule.Timer
	deadline time.Time
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithScheduler(sc schedule.Scheduler) Option {
	return func(s *Session) { s.sched = sc }
}

// WithAutoLock sets the inactivity timeout. Zero disables auto-lock.
func WithAutoLock(d time.Duration) Option {
	return func(s *Session) { s.autoLock = d }
}

// WithKDF selects the key derivation for vaults created by this session.
func WithKDF(p krypto.KDFParams) Option {
	return func(s *Session) { s.kdf = p }
}

func WithPolicy(p auth.Policy) Option {
	return func(s *Session) { s.policy = p }
}

func WithAudit(a Auditor) Option {
	return func(s *Session) { s.audit = a }
}

func WithClipboard(g *clipguard.Guard) Option {
	return func(s *Session) { s.clip = g }
}

// WithOnLock registers a callback run after every Unlocked to Locked
// transition, outside the session lock.
func WithOnLock(fn func(LockReason)) Option {
	return func(s *Session) { s.onLock = fn }
}

func WithThrottle(t auth.ThrottleSettings) Option {
	return func(s *Session) { s.throttle = t }
}

// New returns a locked session.
func New(opts ...Option) *Session {
	s := &Session{
		log:       zap.NewNop(),
		sched:     schedule.System,
		autoLock:  DefaultAutoLock,
		kdf:       krypto.DefaultKDFParams(),
		policy:    auth.DefaultPolicy(),
		throttle:  auth.DefaultThrottleSettings(),
		throttles: make(map[string]*auth.Throttle),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsUnlocked reports whether a vault is open.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Unlocked
}

// Status returns the current state and last lock reason.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Reason: s.reason}
	if s.state == Unlocked {
		st.Path = s.path
		st.Records = len(s.data.Records)
		st.Deadline = s.deadline
	}
	return st
}

// TouchActivity pushes the auto-lock deadline out by the full timeout.
func (s *Session) TouchActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Unlocked {
		s.armLocked()
	}
}

// Lock destroys the key and drops the record set. Locking a locked session is a no-op.
func (s *Session) Lock() {
	s.lockWith(ReasonExplicit, 0, false)
}

func (s *Session) expire(gen uint64) {
	s.lockWith(ReasonInactivity, gen, true)
}

// lockWith locks if unlocked. With checkGen set, it only acts when gen is
// still the current timer generation.
func (s *Session) lockWith(reason LockReason, gen uint64, checkGen bool) {
	s.mu.Lock()
	if s.state != Unlocked || (checkGen && gen != s.gen) {
		s.mu.Unlock()
		return
	}
	s.lockLocked(reason)
	cb := s.onLock
	s.mu.Unlock()

	if cb != nil {
		cb(reason)
	}
}

func (s *Session) lockLocked(reason LockReason) {
	s.stopTimerLocked()
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
	path := s.path
	s.data = nil
	s.file = vault.File{}
	s.path = ""
	s.state = Locked
	s.reason = reason

	s.log.Info("vault locked", zap.String("path", path), zap.Stringer("reason", reason))
	s.record(audit.KindLocked, path, reason.String())
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.deadline = time.Time{}
}

// armLocked (re)starts the inactivity timer. Every call invalidates callbacks
// from earlier timers through the generation counter.
func (s *Session) armLocked() {
	s.stopTimerLocked()
	if s.autoLock <= 0 {
		return
	}
	gen := s.gen
	s.deadline = s.sched.Now().Add(s.autoLock)
	s.timer = s.sched.AfterFunc(s.autoLock, func() { s.expire(gen) })
}

func (s *Session) record(kind audit.Kind, path, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(context.Background(), audit.Event{
		At:     s.sched.Now(),
		Vault:  path,
		Kind:   kind,
		Detail: detail,
	})
	if err != nil {
		s.log.Warn("audit write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// sealAndSaveLocked encrypts data under key with a fresh nonce and replaces
// the vault file. s.file is updated only when the save succeeds.
func (s *Session) sealAndSaveLocked(key []byte, data *vault.Payload) error {
	plaintext, err := data.Encode()
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plaintext)

	nonce, ciphertext, err := krypto.Seal(key, plaintext, s.file.AAD())
	if err != nil {
		return errors.Wrap(err, "seal vault")
	}

	f := s.file
	f.Nonce = nonce
	f.Ciphertext = ciphertext
	start := time.Now()
	if err := saveFile(s.path, f); err != nil {
		s.log.Error("vault save failed", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.file = f

	s.log.Debug("vault saved",
		zap.String("path", s.path),
		zap.Int("records", len(data.Records)),
		zap.Duration("took", time.Since(start)))
	s.record(audit.KindSaved, s.path, "")
	return nil
}
