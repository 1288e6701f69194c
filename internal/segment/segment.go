package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Segment is the smallest renderable unit: one numerically-named directory
// holding a still image and a narration clip. The set is discovered once at
// job start and immutable for the job's lifetime.
type Segment struct {
	// ID is the numeric directory name, unique within a chapter. Final
	// concatenation order is ascending ID regardless of render completion
	// order.
	ID  int
	Dir string
}

// Discover scans chapterDir for numerically-named subdirectories and returns
// them sorted ascending by ID. Non-numeric entries and plain files are
// ignored. An empty result is not an error here; the job layer decides
// whether zero segments is fatal.
func Discover(chapterDir string) ([]Segment, error) {
	entries, err := os.ReadDir(chapterDir)
	if err != nil {
		return nil, fmt.Errorf("read chapter directory: %w", err)
	}

	segments := make([]Segment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		segments = append(segments, Segment{
			ID:  id,
			Dir: filepath.Join(chapterDir, entry.Name()),
		})
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })
	return segments, nil
}
