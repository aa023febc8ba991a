package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/awnumar/memguard"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/vaultkeeper/auth"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/audit"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
	"github.com/Hussein-Mazeh/vaultkeeper/krypto"
	"github.com/Hussein-Mazeh/vaultkeeper/store"
)

// throttleFor returns the failure throttle for path, seeding it from the
// audit log the first time. Callers hold unlockMu.
func (s *Session) throttleFor(path string) *auth.Throttle {
	if th, ok := s.throttles[path]; ok {
		return th
	}
	th := auth.NewThrottle(s.throttle)
	if s.audit != nil {
		since := s.sched.Now().Add(-s.throttle.Window)
		times, err := s.audit.Failures(context.Background(), path, since)
		if err != nil {
			s.log.Warn("could not read unlock failures from audit log", zap.Error(err))
		} else {
			th.Seed(times)
		}
	}
	s.throttles[path] = th
	return th
}

func (s *Session) setReason(r LockReason) {
	s.mu.Lock()
	if s.state == Locked {
		s.reason = r
	}
	s.mu.Unlock()
}

// Unlock opens the vault at path. A wrong passphrase and a tampered file both
// yield ErrAuthFailure. ErrNotFound means there is no vault yet.
func (s *Session) Unlock(path, passphrase string) error {
	s.unlockMu.Lock()
	defer s.unlockMu.Unlock()

	if s.IsUnlocked() {
		return ErrAlreadyUnlocked
	}

	th := s.throttleFor(path)
	if left := th.Remaining(s.sched.Now()); left > 0 {
		return errors.WithHintf(
			errors.Wrapf(ErrCooldown, "try again in %s", left.Round(time.Second)),
			"unlocking is paused after repeated failures")
	}

	f, err := store.Load(path)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.setReason(ReasonError)
		}
		return err
	}

	pw := []byte(passphrase)
	defer memguard.WipeBytes(pw)

	start := time.Now()
	key, err := krypto.DeriveKey(pw, f.Salt, f.KDF)
	if err != nil {
		return errors.Wrap(err, "derive key")
	}
	took := time.Since(start)

	plaintext, err := krypto.Open(key, f.Nonce, f.Ciphertext, f.AAD())
	if err != nil {
		key.Wipe()
		n := th.RecordFailure(s.sched.Now())
		s.setReason(ReasonAuthFailure)
		s.log.Warn("vault unlock failed", zap.String("path", path), zap.Int("recent_failures", n))
		s.record(audit.KindUnlockFailed, path, "")
		return err
	}

	data, err := vault.DecodePayload(plaintext)
	memguard.WipeBytes(plaintext)
	if err != nil {
		key.Wipe()
		s.setReason(ReasonError)
		return errors.Mark(err, store.ErrCorrupted)
	}

	buf := memguard.NewBufferFromBytes(key) // wipes key

	s.mu.Lock()
	s.state = Unlocked
	s.epoch++
	s.path = path
	s.file = f
	s.key = buf
	s.data = data
	s.armLocked()
	s.mu.Unlock()

	th.Reset()
	s.log.Info("vault unlocked",
		zap.String("path", path),
		zap.Int("records", len(data.Records)),
		zap.String("kdf", f.KDF.Name),
		zap.Duration("kdf_took", took))
	s.record(audit.KindUnlocked, path, "")
	return nil
}

// UnlockAsync runs Unlock on its own goroutine. The channel receives exactly one value.
func (s *Session) UnlockAsync(path, passphrase string) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- s.Unlock(path, passphrase)
	}()
	return ch
}

// CreateVault writes a new empty vault at path and leaves the session unlocked on it.
func (s *Session) CreateVault(path, passphrase string) error {
	s.unlockMu.Lock()
	defer s.unlockMu.Unlock()

	if s.IsUnlocked() {
		return ErrAlreadyUnlocked
	}
	exists, err := store.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(ErrVaultExists, "%s", path)
	}
	if err := s.policy.Validate(context.Background(), passphrase); err != nil {
		return err
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return err
	}

	pw := []byte(passphrase)
	defer memguard.WipeBytes(pw)
	key, err := krypto.DeriveKey(pw, salt, s.kdf)
	if err != nil {
		return errors.Wrap(err, "derive key")
	}
	buf := memguard.NewBufferFromBytes(key)

	data := vault.NewPayload()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.path = path
	s.file = vault.File{Version: vault.FormatVersion, KDF: s.kdf, Salt: salt}
	if err := s.sealAndSaveLocked(buf.Bytes(), data); err != nil {
		buf.Destroy()
		s.path = ""
		s.file = vault.File{}
		return err
	}
	s.state = Unlocked
	s.epoch++
	s.key = buf
	s.data = data
	s.armLocked()

	s.log.Info("vault created", zap.String("path", path), zap.String("kdf", s.kdf.Name))
	s.record(audit.KindCreated, path, s.kdf.Name)
	return nil
}

// ChangePassphrase re-encrypts the vault under a key derived from next. The
// salt and KDF parameters stay the same. current must match the open vault.
func (s *Session) ChangePassphrase(current, next string) error {
	s.unlockMu.Lock()
	defer s.unlockMu.Unlock()

	s.mu.Lock()
	if s.state != Unlocked {
		s.mu.Unlock()
		return ErrLocked
	}
	epoch := s.epoch
	salt := append([]byte(nil), s.file.Salt...)
	params := s.file.KDF
	path := s.path
	s.armLocked()
	s.mu.Unlock()

	cur := []byte(current)
	defer memguard.WipeBytes(cur)
	curKey, err := krypto.DeriveKey(cur, salt, params)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "verify current passphrase"), krypto.ErrAuthFailure)
	}
	defer curKey.Wipe()

	if err := s.verifyKey(epoch, curKey); err != nil {
		return err
	}
	if err := s.policy.Validate(context.Background(), next); err != nil {
		return err
	}

	nxt := []byte(next)
	defer memguard.WipeBytes(nxt)
	newKey, err := krypto.DeriveKey(nxt, salt, params)
	if err != nil {
		return errors.Wrap(err, "derive key")
	}
	buf := memguard.NewBufferFromBytes(newKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked || s.epoch != epoch {
		buf.Destroy()
		return ErrLocked
	}
	if err := s.sealAndSaveLocked(buf.Bytes(), s.data); err != nil {
		buf.Destroy()
		return err
	}
	s.key.Destroy()
	s.key = buf
	s.armLocked()

	s.log.Info("master passphrase changed", zap.String("path", path))
	s.record(audit.KindPassphraseChanged, path, "")
	return nil
}

func (s *Session) verifyKey(epoch uint64, candidate []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked || s.epoch != epoch {
		return ErrLocked
	}
	if subtle.ConstantTimeCompare(candidate, s.key.Bytes()) != 1 {
		return errors.Wrap(krypto.ErrAuthFailure, "current passphrase is incorrect")
	}
	return nil
}
