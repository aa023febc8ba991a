package passgen

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefault(t *testing.T) {
	res, err := Generate(DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Password, DefaultLength)
	assert.True(t, strings.ContainsAny(res.Password, upperSet))
	assert.True(t, strings.ContainsAny(res.Password, lowerSet))
	assert.True(t, strings.ContainsAny(res.Password, digitSet))
	assert.True(t, strings.ContainsAny(res.Password, SymbolSet))
	assert.Greater(t, res.Entropy, 90.0)
	assert.GreaterOrEqual(t, res.Score, 0)
	assert.LessOrEqual(t, res.Score, 4)
}

func TestGenerateEveryClassAtMinimumLength(t *testing.T) {
	o := DefaultOptions()
	o.Length = MinLength
	for i := 0; i < 200; i++ {
		res, err := Generate(o)
		require.NoError(t, err)
		require.True(t, strings.ContainsAny(res.Password, upperSet), res.Password)
		require.True(t, strings.ContainsAny(res.Password, lowerSet), res.Password)
		require.True(t, strings.ContainsAny(res.Password, digitSet), res.Password)
		require.True(t, strings.ContainsAny(res.Password, SymbolSet), res.Password)
	}
}

func TestGenerateExcludeAmbiguous(t *testing.T) {
	o := DefaultOptions()
	o.Length = MaxLength
	o.ExcludeAmbiguous = true
	for i := 0; i < 20; i++ {
		res, err := Generate(o)
		require.NoError(t, err)
		require.False(t, strings.ContainsAny(res.Password, ambiguous), res.Password)
	}
}

func TestGeneratePresets(t *testing.T) {
	for _, name := range PresetNames() {
		res, err := Generate(Presets[name])
		require.NoError(t, err, name)
		assert.Len(t, res.Password, Presets[name].Length, name)
	}
	pin, err := Generate(Presets["pin"])
	require.NoError(t, err)
	assert.Equal(t, "", strings.Trim(pin.Password, digitSet))

	web, err := Generate(Presets["websafe"])
	require.NoError(t, err)
	assert.Equal(t, "", strings.Trim(web.Password, upperSet+lowerSet+digitSet+webSymbols))
}

func TestGenerateInvalid(t *testing.T) {
	for _, o := range []Options{
		{Length: 3, Lower: true},
		{Length: 129, Lower: true},
		{Length: 10},
	} {
		_, err := Generate(o)
		assert.True(t, errors.Is(err, ErrInvalidOptions), "%+v", o)
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		res, err := Generate(DefaultOptions())
		require.NoError(t, err)
		require.False(t, seen[res.Password])
		seen[res.Password] = true
	}
}

func TestStrengthLabel(t *testing.T) {
	assert.Equal(t, "very weak", StrengthLabel(0))
	assert.Equal(t, "fair", StrengthLabel(2))
	assert.Equal(t, "excellent", StrengthLabel(4))
}
