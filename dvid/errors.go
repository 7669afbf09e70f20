package dvid

import "errors"

// Error kinds shared across packages.  Callers wrap these with fmt.Errorf("...: %w", ...)
// and test for them with errors.Is.
var (
	// ErrInvalidArgument covers missing or malformed seeds, out-of-bounds anchors, and
	// mismatched dimensions between images that must share a grid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedFormat is returned for paths that are neither a known image file
	// nor a directory of slices.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptyResult marks a grown region with no voxels.  It is reported, not returned
	// as a failure of the computation.
	ErrEmptyResult = errors.New("empty result")

	// ErrGraphInconsistency marks an anchor whose label has no adjacency entries.  The
	// anchor selector falls back to a default choice when it sees this.
	ErrGraphInconsistency = errors.New("graph inconsistency")
)
