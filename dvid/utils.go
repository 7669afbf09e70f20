package dvid

import (
	"path/filepath"

	"github.com/blang/semver"
	"github.com/dustin/go-humanize"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// Version is the release of this reseg module.
var Version = semver.MustParse("0.3.0")

// Bytes returns a human-readable byte count, e.g., "1.2 MiB".
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// Comma returns an integer with thousands separators.
func Comma(n int64) string {
	return humanize.Comma(n)
}

// ConvertToAbsolute converts a path relative to baseDir into an absolute path.
// Absolute and empty paths are returned unchanged.
func ConvertToAbsolute(relPath string, baseDir string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return relPath, nil
	}
	return filepath.Abs(filepath.Join(baseDir, relPath))
}
