package checkpoint

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoStep is returned when a checkpoint filename carries no parseable step number.
var ErrNoStep = errors.New("no step number in checkpoint name")

// #region types
// Checkpoint is a saved model file paired with the training step it was taken at.
type Checkpoint struct {
	Path string
	Step float64
}

// #endregion types

// #region discover
// Discover lists files in dir matching pattern, newest-named first.
// An empty directory yields an empty list, not an error.
func Discover(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// #endregion discover

// #region parse-step
// ParseStep extracts the step from names like model_0087500.pth.
// The text after the last occurrence of prefix, minus the extension, must be a number.
func ParseStep(path, prefix string) (float64, error) {
	base := filepath.Base(path)
	idx := strings.LastIndex(base, prefix)
	if prefix == "" || idx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoStep, base)
	}
	rest := base[idx+len(prefix):]
	rest = strings.TrimSuffix(rest, filepath.Ext(rest))
	step, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNoStep, base)
	}
	return step, nil
}

// #endregion parse-step

// #region plan
// Plan pairs each path with its step, keeping order.
// Paths without a step come back in skipped.
func Plan(paths []string, prefix string) (planned []Checkpoint, skipped []string) {
	for _, p := range paths {
		step, err := ParseStep(p, prefix)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		planned = append(planned, Checkpoint{Path: p, Step: step})
	}
	return planned, skipped
}

// #endregion plan
