// Package versioncheck reports whether a newer keyplanectl release exists.
// Results are cached on disk so repeated invocations stay offline, and a
// fetch failure degrades to the stale cache rather than an error the user
// has to care about.
package versioncheck

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Result is the outcome of one check. A failed fetch with no usable cache
// leaves LatestVersion empty and Err set.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	UpdateAvailable bool
	FromCache       bool
	Err             error
}

// Checker performs release checks with disk caching.
type Checker struct {
	Releases  *ReleaseClient
	CachePath string
	CacheTTL  time.Duration
}

// NewChecker creates a Checker against the public release feed with a
// 24-hour cache.
func NewChecker() *Checker {
	return &Checker{
		Releases:  NewReleaseClient(DefaultReleaseAPI),
		CachePath: DefaultCachePath(),
		CacheTTL:  24 * time.Hour,
	}
}

// Check compares currentVersion against the latest published release,
// preferring a fresh cache entry over a network fetch.
func (c *Checker) Check(currentVersion string) *Result {
	result := &Result{CurrentVersion: currentVersion}

	cached, cacheErr := readCache(c.CachePath)
	if cacheErr == nil && cached.fresh(c.CacheTTL) {
		result.LatestVersion = cached.LatestVersion
		result.ReleaseURL = cached.ReleaseURL
		result.FromCache = true
	} else {
		release, err := c.Releases.Latest()
		if err != nil {
			result.Err = err
			if cacheErr == nil {
				// Stale beats nothing.
				result.LatestVersion = cached.LatestVersion
				result.ReleaseURL = cached.ReleaseURL
				result.FromCache = true
			}
			if result.LatestVersion == "" {
				return result
			}
		} else {
			result.LatestVersion = strings.TrimPrefix(release.TagName, "v")
			result.ReleaseURL = release.HTMLURL
			// A failed cache write never fails the check.
			_ = writeCache(c.CachePath, &cacheEntry{
				LatestVersion: result.LatestVersion,
				ReleaseURL:    result.ReleaseURL,
				CheckedAt:     time.Now().UTC(),
			})
		}
	}

	result.UpdateAvailable = isNewer(currentVersion, result.LatestVersion)
	return result
}

// isNewer reports whether latest is strictly newer than current under
// semantic versioning. Unparsable versions (like "dev") never prompt an
// upgrade.
func isNewer(current, latest string) bool {
	cur, lat := normalize(current), normalize(latest)
	if !semver.IsValid(cur) || !semver.IsValid(lat) {
		return false
	}
	return semver.Compare(cur, lat) < 0
}

func normalize(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// DefaultCachePath puts the cache under XDG_CACHE_HOME, falling back to
// the user cache dir, then the system temp dir.
func DefaultCachePath() string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
	}
	return filepath.Join(dir, "keyplane", "release-check.json")
}
