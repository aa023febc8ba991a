package audit

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpenCreatesPrivateFile(t *testing.T) {
	l := openTestLog(t)
	info, err := os.Stat(l.Path())
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	_, err = Open("")
	assert.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, Event{At: base, Vault: "/v.json", Kind: KindCreated}))
	require.NoError(t, l.Record(ctx, Event{At: base.Add(time.Second), Vault: "/v.json", Kind: KindSaved, Detail: "3 records"}))
	require.NoError(t, l.Record(ctx, Event{At: base.Add(2 * time.Second), Vault: "/v.json", Kind: KindLocked, Detail: "inactivity"}))

	events, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindLocked, events[0].Kind)
	assert.Equal(t, "inactivity", events[0].Detail)
	assert.True(t, events[0].At.Equal(base.Add(2*time.Second)))
	assert.Equal(t, KindSaved, events[1].Kind)

	all, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFailuresSinceLastUnlock(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := func(offset time.Duration, vault string, kind Kind) {
		require.NoError(t, l.Record(ctx, Event{At: base.Add(offset), Vault: vault, Kind: kind}))
	}

	rec(0, "a", KindUnlockFailed)
	rec(time.Minute, "a", KindUnlocked)
	rec(2*time.Minute, "a", KindUnlockFailed)
	rec(3*time.Minute, "a", KindUnlockFailed)
	rec(3*time.Minute, "b", KindUnlockFailed)

	got, err := l.Failures(ctx, "a", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(base.Add(2*time.Minute)))

	got, err = l.Failures(ctx, "a", base.Add(150*time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = l.Failures(ctx, "b", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
