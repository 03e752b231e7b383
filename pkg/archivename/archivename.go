// Package archivename derives and parses backup archive names of the form
// backup-YYYY-MM-DD-HH-mm. The timestamp is zero-padded, so names sort
// lexicographically in time order.
package archivename

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// Prefix starts every archive name.
	Prefix = "backup-"
	// Layout is the time layout embedded after Prefix.
	Layout = "2006-01-02-15-04"
	// DefaultExt is the extension of archives written by this module.
	DefaultExt = ".zip"
)

// pattern matches a full archive name with an optional extension.
var pattern = regexp.MustCompile(`^backup-(\d{4}-\d{2}-\d{2}-\d{2}-\d{2})(\.[A-Za-z0-9.]+)?$`)

// NameFor returns the archive base name for now in local time, truncated to
// the minute. Two calls within the same minute return the same name.
func NameFor(now time.Time) string {
	return Prefix + now.Local().Format(Layout)
}

// FileName returns NameFor(now) with ext appended. ext may omit the dot.
func FileName(now time.Time, ext string) string {
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return NameFor(now) + ext
}

// Match reports whether name is an archive name.
func Match(name string) bool {
	return pattern.MatchString(name)
}

// Parse returns the local time embedded in an archive name.
func Parse(name string) (time.Time, error) {
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("not an archive name: %q", name)
	}
	t, err := time.ParseInLocation(Layout, m[1], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp in archive name %q: %w", name, err)
	}
	return t, nil
}
