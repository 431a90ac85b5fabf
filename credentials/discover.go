package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/subculture-collective/reelrelay/links"
)

// DefaultPrefixes are the cookie file name prefixes looked up per platform.
var DefaultPrefixes = map[links.Platform]string{
	links.Instagram:     "cookies",
	links.TikTok:        "cookie_tiktok",
	links.YouTubeShorts: "cookie_youtube",
}

// Discover lists dir once and builds a pool from files named
// <prefix>.txt or <prefix><sep><n>.txt, sep being empty, "-" or "_".
// Files are ordered by n (a bare <prefix>.txt counts as 0) and get dense
// ordinals from 1. A missing directory yields an empty pool.
func Discover(dir string, prefixes map[links.Platform]string) (*Pool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("cookie directory not found; only unauthenticated attempts will run", slog.String("dir", dir), slog.String("component", "credentials"))
			return NewPool(nil), nil
		}
		return nil, fmt.Errorf("read cookie dir: %w", err)
	}

	paths := make(map[links.Platform][]string, len(prefixes))
	for platform, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(?:[-_]?(\d+))?\.txt$`)
		type match struct {
			name string
			n    int
		}
		var found []match
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			m := re.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			n := 0
			if m[1] != "" {
				n, _ = strconv.Atoi(m[1])
			}
			found = append(found, match{name: e.Name(), n: n})
		}
		sort.Slice(found, func(i, j int) bool {
			if found[i].n != found[j].n {
				return found[i].n < found[j].n
			}
			return found[i].name < found[j].name
		})
		for _, f := range found {
			paths[platform] = append(paths[platform], filepath.Join(dir, f.name))
		}
	}

	pool := NewPool(paths)
	for _, platform := range links.Platforms {
		files := make([]string, 0, len(paths[platform]))
		for _, p := range paths[platform] {
			files = append(files, filepath.Base(p))
		}
		slog.Info("cookie sessions discovered",
			slog.String("platform", string(platform)),
			slog.Int("count", len(files)),
			slog.String("files", strings.Join(files, ",")),
			slog.String("component", "credentials"))
	}
	return pool, nil
}
