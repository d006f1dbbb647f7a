// Package blocklist holds the set of channels and users the service refuses
// to serve. Names are stored only as sha256 digests of their trimmed,
// lower-cased form.
package blocklist

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultSource is the published blocklist.
const DefaultSource = "https://github.com/howroyd/twitchplays/releases/latest/download/blocklist"

// Hash returns the digest stored for name.
func Hash(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return hex.EncodeToString(sum[:])
}

// List is an immutable set of digests. The zero value blocks nothing.
type List struct {
	digests map[string]struct{}
}

// New builds a list from digests.
func New(digests ...string) *List {
	l := &List{digests: make(map[string]struct{}, len(digests))}
	for _, d := range digests {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			l.digests[d] = struct{}{}
		}
	}
	return l
}

// FromNames builds a list from plain names.
func FromNames(names ...string) *List {
	digests := make([]string, 0, len(names))
	for _, n := range names {
		digests = append(digests, Hash(n))
	}
	return New(digests...)
}

// Len returns the number of digests.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.digests)
}

// Contains reports whether name is blocked.
func (l *List) Contains(name string) bool {
	if l.Len() == 0 {
		return false
	}
	_, ok := l.digests[Hash(name)]
	return ok
}

// Blocked returns the names from names that are on the list.
func (l *List) Blocked(names ...string) []string {
	var out []string
	for _, n := range names {
		if l.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Parse reads one digest per line. Blank lines and lines starting with # are
// skipped.
func Parse(r io.Reader) (*List, error) {
	var digests []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := hex.DecodeString(line); err != nil || len(line) != sha256.Size*2 {
			return nil, fmt.Errorf("invalid digest %q", line)
		}
		digests = append(digests, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	return New(digests...), nil
}

// Load reads a list from src, which is either an http(s) URL or a file path.
// An empty src yields an empty list.
func Load(ctx context.Context, src string) (*List, error) {
	if src == "" {
		return New(), nil
	}
	var (
		l   *List
		err error
	)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		l, err = fetch(ctx, src)
	} else {
		var f *os.File
		f, err = os.Open(src)
		if err == nil {
			defer f.Close()
			l, err = Parse(f)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load blocklist %s: %w", src, err)
	}
	slog.Info("blocklist loaded", slog.String("source", src), slog.Int("entries", l.Len()), slog.String("component", "blocklist"))
	return l, nil
}

func fetch(ctx context.Context, url string) (*List, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return Parse(io.LimitReader(resp.Body, 1<<20))
}
