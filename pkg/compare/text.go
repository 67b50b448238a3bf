package compare

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
)

// maxLineSize bounds a single line of a text artifact
const maxLineSize = 16 * 1024 * 1024

// TextDiffer compares files as unordered sets of lines. Reordered lines
// are not a difference; line terminators are ignored.
type TextDiffer struct{}

// Name returns the comparator name
func (TextDiffer) Name() string {
	return CheckText
}

// Validate diffs the pair
func (d TextDiffer) Validate(ctx context.Context, log logging.Logger, pair models.FilePair) models.DiffResult {
	return d.Diff(ctx, log.WithFields(pairFields(pair)), pair.MasterPath, pair.TestPath)
}

// Diff checks that both files carry the same name, then computes the set
// difference of their lines in both directions
func (TextDiffer) Diff(ctx context.Context, log logging.Logger, masterPath, testPath string) models.DiffResult {
	mn, tn := filepath.Base(masterPath), filepath.Base(testPath)
	if mn != tn {
		log.Error(ctx, "File names differ", nil, logging.Fields{"master_name": mn, "test_name": tn})
		return models.NameMismatch(mn, tn)
	}

	master, err := readLineSet(masterPath)
	if err != nil {
		log.Error(ctx, "Failed to read master file", err, nil)
		return models.Unreadable(CheckText, fmt.Errorf("master %s: %w", masterPath, err))
	}
	test, err := readLineSet(testPath)
	if err != nil {
		log.Error(ctx, "Failed to read test file", err, nil)
		return models.Unreadable(CheckText, fmt.Errorf("test %s: %w", testPath, err))
	}

	added := setDifference(test, master)
	removed := setDifference(master, test)
	if len(added) == 0 && len(removed) == 0 {
		log.Info(ctx, "No differences", nil)
		return models.Match(CheckText)
	}

	for _, line := range added {
		log.Error(ctx, "Line added", nil, logging.Fields{"line": line})
	}
	for _, line := range removed {
		log.Error(ctx, "Line removed", nil, logging.Fields{"line": line})
	}
	return models.TextDiff(added, removed)
}

func readLineSet(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines[strings.TrimSuffix(scanner.Text(), "\r")] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// setDifference returns the sorted lines of a missing from b
func setDifference(a, b map[string]struct{}) []string {
	var out []string
	for line := range a {
		if _, ok := b[line]; !ok {
			out = append(out, line)
		}
	}
	sort.Strings(out)
	return out
}
