package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	hibpRangeURL  = "https://api.pwnedpasswords.com/range/"
	hibpUserAgent = "vaultkeeper/1.0"
)

// BreachResult reports whether a passphrase hash appears in the Pwned Passwords dataset.
type BreachResult struct {
	Found bool
	Count int
}

// BreachChecker queries a Pwned Passwords compatible range API using k-anonymity:
// only the first 5 hex characters of SHA1(pw) leave the process.
type BreachChecker struct {
	BaseURL string
	Client  *http.Client
}

// DefaultBreachChecker targets api.pwnedpasswords.com with a short timeout.
func DefaultBreachChecker() *BreachChecker {
	return &BreachChecker{
		BaseURL: hibpRangeURL,
		Client:  &http.Client{Timeout: 4 * time.Second},
	}
}

// Check looks pw up. Network and HTTP failures are returned as errors; the
// caller decides whether to fail open or closed.
func (c *BreachChecker) Check(ctx context.Context, pw string) (BreachResult, error) {
	var result BreachResult

	sum := sha1.Sum([]byte(pw))
	hashHex := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := hashHex[:5], hashHex[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+prefix, nil)
	if err != nil {
		return result, errors.Wrap(err, "hibp request")
	}
	req.Header.Set("User-Agent", hibpUserAgent)
	req.Header.Set("Add-Padding", "true")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return result, errors.Wrap(err, "hibp query")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, errors.Newf("hibp query: unexpected status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineSuffix, countStr, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(lineSuffix, suffix) {
			continue
		}

		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil {
			return result, errors.Wrap(err, "hibp parse count")
		}
		// padding entries carry a zero count
		if count == 0 {
			continue
		}
		result.Found = true
		result.Count = count
		return result, nil
	}
	if err := scanner.Err(); err != nil {
		return result, errors.Wrap(err, "hibp read response")
	}
	return result, nil
}
