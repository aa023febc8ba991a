package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	ctx := context.Background()

	assert.NoError(t, p.Validate(ctx, "Correct1!"))

	for _, pw := range []string{"", "Sh0rt!", "lowercase1!", "NoDigits!!", "NoSpecial12"} {
		err := p.Validate(ctx, pw)
		require.Error(t, err, pw)
		assert.True(t, errors.Is(err, ErrWeakPassphrase), pw)
	}
}

func TestPolicyShortHasHint(t *testing.T) {
	err := DefaultPolicy().Validate(context.Background(), "A1!")
	require.Error(t, err)
	assert.Contains(t, strings.Join(errors.GetAllHints(err), " "), "8 characters")
}

func TestPolicyMinScore(t *testing.T) {
	p := Policy{MinLength: 1, MinScore: 3}
	err := p.Validate(context.Background(), "password")
	assert.True(t, errors.Is(err, ErrWeakPassphrase))
	assert.NoError(t, p.Validate(context.Background(), "vL9#qT2!mZx&4rPw"))

	assert.Equal(t, 0, Score(""))
	assert.GreaterOrEqual(t, Score("vL9#qT2!mZx&4rPw"), 3)
}

func hibpServer(t *testing.T, pw string, count int) *httptest.Server {
	t.Helper()
	sum := sha1.Sum([]byte(pw))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/"+h[:5]) {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "0000000000000000000000000000000000A:3\r\n")
		fmt.Fprintf(w, "%s:%d\r\n", strings.ToLower(h[5:]), count)
	}))
}

func TestBreachChecker(t *testing.T) {
	srv := hibpServer(t, "Correct1!", 42)
	defer srv.Close()
	c := &BreachChecker{BaseURL: srv.URL + "/range/", Client: srv.Client()}

	res, err := c.Check(context.Background(), "Correct1!")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 42, res.Count)

	res, err = c.Check(context.Background(), "Other1!x")
	require.Error(t, err) // 404 for unknown prefix
	assert.False(t, res.Found)
}

func TestBreachCheckerPaddingIgnored(t *testing.T) {
	srv := hibpServer(t, "Correct1!", 0)
	defer srv.Close()
	c := &BreachChecker{BaseURL: srv.URL + "/range/", Client: srv.Client()}

	res, err := c.Check(context.Background(), "Correct1!")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestPolicyBreached(t *testing.T) {
	srv := hibpServer(t, "Correct1!", 7)
	defer srv.Close()
	p := DefaultPolicy()
	p.CheckBreached = true
	p.Breach = &BreachChecker{BaseURL: srv.URL + "/range/", Client: srv.Client()}

	err := p.Validate(context.Background(), "Correct1!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWeakPassphrase))

	// lookup failure is not a policy rejection
	err = p.Validate(context.Background(), "Different1!")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrWeakPassphrase))
}

func TestThrottleLadder(t *testing.T) {
	th := NewThrottle(DefaultThrottleSettings())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		th.RecordFailure(now)
	}
	assert.Zero(t, th.Remaining(now))

	assert.Equal(t, 5, th.RecordFailure(now))
	assert.Equal(t, 30*time.Second, th.Remaining(now))
	assert.Equal(t, 10*time.Second, th.Remaining(now.Add(20*time.Second)))
	assert.Zero(t, th.Remaining(now.Add(30*time.Second)))

	for i := 0; i < 5; i++ {
		th.RecordFailure(now.Add(time.Minute))
	}
	assert.Equal(t, 5*time.Minute, th.Remaining(now.Add(time.Minute)))

	th.Reset()
	assert.Zero(t, th.Remaining(now.Add(time.Minute)))
}

func TestThrottleWindowExpiry(t *testing.T) {
	th := NewThrottle(DefaultThrottleSettings())
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var seed []time.Time
	for i := 0; i < 20; i++ {
		seed = append(seed, old)
	}
	th.Seed(seed)
	assert.Equal(t, 30*time.Minute, th.Remaining(old))

	later := old.Add(2 * time.Hour)
	assert.Zero(t, th.Remaining(later))
	assert.Equal(t, 1, th.RecordFailure(later))
}
