package auth

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/nbutton23/zxcvbn-go"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// ErrWeakPassphrase marks every policy rejection.
var ErrWeakPassphrase = errors.New("passphrase does not meet policy")

// Policy is the master passphrase policy applied on vault creation and passphrase change.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
	// MinScore is the lowest accepted zxcvbn score (0-4). 0 disables the check.
	MinScore int
	// CheckBreached queries the Pwned Passwords range API.
	CheckBreached bool
	// Breach overrides the default breach checker when CheckBreached is set.
	Breach *BreachChecker
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		RequireUpper:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

func weak(msg string) error {
	return errors.Mark(errors.New(msg), ErrWeakPassphrase)
}

// Validate checks pw against the policy. Rejections are marked ErrWeakPassphrase;
// a failing breach lookup is returned unmarked so callers can tell it apart.
func (p Policy) Validate(ctx context.Context, pw string) error {
	if pw == "" {
		return weak("passphrase is required")
	}
	if utf8.RuneCountInString(pw) < p.MinLength {
		return errors.WithHintf(weak("passphrase is too short"),
			"use at least %d characters", p.MinLength)
	}
	if p.RequireUpper && !hasUpper(pw) {
		return weak("passphrase must include an uppercase letter")
	}
	if p.RequireDigit && !hasDigit(pw) {
		return weak("passphrase must include a digit")
	}
	if p.RequireSpecial && !hasSpecial(pw) {
		return weak("passphrase must include a special character")
	}
	if p.MinScore > 0 {
		if score := Score(pw); score < p.MinScore {
			return errors.WithHint(
				errors.Mark(errors.Newf("passphrase strength %d is below the required %d", score, p.MinScore), ErrWeakPassphrase),
				"avoid dictionary words, names and keyboard patterns")
		}
	}
	if p.CheckBreached {
		checker := p.Breach
		if checker == nil {
			checker = DefaultBreachChecker()
		}
		res, err := checker.Check(ctx, pw)
		if err != nil {
			return errors.Wrap(err, "breach check")
		}
		if res.Found {
			return errors.Mark(
				errors.Newf("passphrase appears in %d known breaches", res.Count),
				ErrWeakPassphrase)
		}
	}
	return nil
}

// Score returns the zxcvbn strength estimate of pw, 0 (weakest) to 4.
func Score(pw string) int {
	if pw == "" {
		return 0
	}
	return zxcvbn.PasswordStrength(pw, nil).Score
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
