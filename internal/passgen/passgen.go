// Package passgen generates random passwords for new records.
package passgen

import (
	"crypto/rand"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/Hussein-Mazeh/vaultkeeper/auth"
)

const (
	MinLength     = 4
	MaxLength     = 128
	DefaultLength = 16

	upperSet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerSet   = "abcdefghijklmnopqrstuvwxyz"
	digitSet   = "0123456789"
	SymbolSet  = "!@#$%^&*()_+-=[]{}|;:,.<>?"
	ambiguous  = "0OoIl1"
	webSymbols = "!@#$%&*"
)

var ErrInvalidOptions = errors.New("invalid generator options")

// Options selects the character classes of a generated password.
type Options struct {
	Length           int
	Upper            bool
	Lower            bool
	Digits           bool
	Symbols          bool
	SymbolSet        string // empty means SymbolSet
	ExcludeAmbiguous bool
}

// DefaultOptions enables every class at DefaultLength.
func DefaultOptions() Options {
	return Options{Length: DefaultLength, Upper: true, Lower: true, Digits: true, Symbols: true}
}

// Presets are named option sets offered by the CLI.
var Presets = map[string]Options{
	"strong":    {Length: 20, Upper: true, Lower: true, Digits: true, Symbols: true, ExcludeAmbiguous: true},
	"memorable": {Length: 12, Upper: true, Lower: true, Digits: true},
	"pin":       {Length: 6, Digits: true},
	"websafe":   {Length: 16, Upper: true, Lower: true, Digits: true, Symbols: true, SymbolSet: webSymbols, ExcludeAmbiguous: true},
	"max":       {Length: 32, Upper: true, Lower: true, Digits: true, Symbols: true, ExcludeAmbiguous: true},
}

// PresetNames returns the preset keys in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Result is a generated password with its strength estimates.
type Result struct {
	Password string
	// Entropy is log2(alphabet^length) in bits.
	Entropy float64
	// Score is the zxcvbn estimate, 0-4.
	Score int
}

func (o Options) groups() []string {
	var groups []string
	add := func(enabled bool, set string) {
		if !enabled {
			return
		}
		if o.ExcludeAmbiguous {
			set = strings.Map(func(r rune) rune {
				if strings.ContainsRune(ambiguous, r) {
					return -1
				}
				return r
			}, set)
		}
		if set != "" {
			groups = append(groups, set)
		}
	}
	symbols := o.SymbolSet
	if symbols == "" {
		symbols = SymbolSet
	}
	add(o.Upper, upperSet)
	add(o.Lower, lowerSet)
	add(o.Digits, digitSet)
	add(o.Symbols, symbols)
	return groups
}

// Generate returns a password with at least one character from every enabled class.
func Generate(o Options) (Result, error) {
	if o.Length < MinLength || o.Length > MaxLength {
		return Result{}, errors.Wrapf(ErrInvalidOptions, "length must be between %d and %d", MinLength, MaxLength)
	}
	groups := o.groups()
	if len(groups) == 0 {
		return Result{}, errors.Wrap(ErrInvalidOptions, "enable at least one character class")
	}
	if len(groups) > o.Length {
		return Result{}, errors.Wrapf(ErrInvalidOptions, "length %d cannot fit %d character classes", o.Length, len(groups))
	}
	all := strings.Join(groups, "")

	pw := make([]byte, 0, o.Length)
	for _, g := range groups {
		c, err := randomChar(g)
		if err != nil {
			return Result{}, err
		}
		pw = append(pw, c)
	}
	for len(pw) < o.Length {
		c, err := randomChar(all)
		if err != nil {
			return Result{}, err
		}
		pw = append(pw, c)
	}
	if err := shuffle(pw); err != nil {
		return Result{}, err
	}

	s := string(pw)
	for i := range pw {
		pw[i] = 0
	}
	return Result{
		Password: s,
		Entropy:  float64(o.Length) * math.Log2(float64(len(all))),
		Score:    auth.Score(s),
	}, nil
}

func randomChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, errors.Wrap(err, "random index")
	}
	return charset[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return errors.Wrap(err, "random index")
		}
		j := int(jBig.Int64())
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

// StrengthLabel describes a zxcvbn score.
func StrengthLabel(score int) string {
	switch {
	case score <= 0:
		return "very weak"
	case score == 1:
		return "weak"
	case score == 2:
		return "fair"
	case score == 3:
		return "strong"
	default:
		return "excellent"
	}
}
