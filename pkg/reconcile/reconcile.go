// Package reconcile pairs the files of a master tree with those of a test
// tree. Files are keyed by their basename, whatever directory they sit in
// below the root; a key present on one side only is reported as unmatched
// and never compared.
package reconcile

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/storage"
)

// Result is the outcome of reconciling one kind
type Result struct {
	Kind       models.Kind
	Pairs      []models.FilePair
	MasterOnly []models.UnmatchedFile
	TestOnly   []models.UnmatchedFile

	// Unpaired holds the files of a skipped kind. They are not compared
	// and do not fail the run.
	Unpaired []models.UnmatchedFile

	// Warnings lists basenames found more than once in one tree. Such
	// files are reported as unmatched.
	Warnings []string

	// Skipped is set when either tree holds no file of the kind
	Skipped    bool
	SkipReason string
}

// Unmatched returns master-only then test-only files
func (r *Result) Unmatched() []models.UnmatchedFile {
	out := make([]models.UnmatchedFile, 0, len(r.MasterOnly)+len(r.TestOnly))
	out = append(out, r.MasterOnly...)
	return append(out, r.TestOnly...)
}

// BuildFileSet lists the files below the backend root with extension ext
// (case-insensitive) that no exclusion pattern matches
func BuildFileSet(ctx context.Context, backend storage.Backend, ext string, excludes Patterns) (models.FileSet, error) {
	files, err := backend.List(ctx, "")
	if err != nil {
		return models.FileSet{}, fmt.Errorf("failed to list %s: %w", backend.Root(), err)
	}
	return filterFileSet(backend.Root(), files, ext, excludes), nil
}

func filterFileSet(root string, files []storage.FileInfo, ext string, excludes Patterns) models.FileSet {
	set := models.FileSet{Root: root, Ext: ext}
	for _, f := range files {
		rel := f.RelativePath
		if ext != "" && !strings.EqualFold(path.Ext(rel), ext) {
			continue
		}
		if excludes.Match(rel) {
			continue
		}
		set.Files = append(set.Files, rel)
	}
	sort.Strings(set.Files)
	return set
}

// Reconcile pairs the master and test files of one kind. Each extension
// in exts is reconciled separately and the results are concatenated in
// extension order, so a.tif and a.img never pair with each other.
func Reconcile(ctx context.Context, master, test storage.Backend, kind models.Kind, exts []string, excludes Patterns) (*Result, error) {
	masterFiles, err := master.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list master tree %s: %w", master.Root(), err)
	}
	testFiles, err := test.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list test tree %s: %w", test.Root(), err)
	}

	result := &Result{Kind: kind}
	var masterCount, testCount int

	for _, ext := range exts {
		m := filterFileSet(master.Root(), masterFiles, ext, excludes)
		t := filterFileSet(test.Root(), testFiles, ext, excludes)
		masterCount += m.Len()
		testCount += t.Len()
		pairSets(kind, m, t, result)
	}

	switch {
	case masterCount == 0 && testCount == 0:
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("no %s files in either tree", kind)
	case masterCount == 0:
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("no %s files in master tree %s", kind, master.Root())
	case testCount == 0:
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("no %s files in test tree %s", kind, test.Root())
	}
	if result.Skipped {
		result.Pairs = nil
		result.Unpaired = result.Unmatched()
		result.MasterOnly, result.TestOnly = nil, nil
	}

	return result, nil
}

// pairSets pairs the files of two sets sharing a basename. A basename
// held by several files of one set is ambiguous: none of its files are
// paired on either side.
func pairSets(kind models.Kind, master, test models.FileSet, result *Result) {
	masterByName := groupByName(master)
	testByName := groupByName(test)
	result.Warnings = append(result.Warnings, duplicateWarnings(kind, "master", master, masterByName)...)
	result.Warnings = append(result.Warnings, duplicateWarnings(kind, "test", test, testByName)...)

	paired := func(name string) bool {
		return len(masterByName[name]) == 1 && len(testByName[name]) == 1
	}

	for _, i := range byName(master) {
		name := path.Base(master.Files[i])
		if !paired(name) {
			result.MasterOnly = append(result.MasterOnly, unmatched(kind, master, i, models.LocationMaster))
			continue
		}
		j := testByName[name][0]
		result.Pairs = append(result.Pairs, models.FilePair{
			Kind:       kind,
			Key:        name,
			MasterPath: master.Abs(i),
			TestPath:   test.Abs(j),
		})
	}
	for _, j := range byName(test) {
		if !paired(path.Base(test.Files[j])) {
			result.TestOnly = append(result.TestOnly, unmatched(kind, test, j, models.LocationTest))
		}
	}
}

func unmatched(kind models.Kind, set models.FileSet, i int, side models.Location) models.UnmatchedFile {
	return models.UnmatchedFile{Kind: kind, Key: set.Files[i], Path: set.Abs(i), Side: side}
}

// groupByName maps each basename to the indexes of the files holding it
func groupByName(set models.FileSet) map[string][]int {
	out := make(map[string][]int, set.Len())
	for i, rel := range set.Files {
		name := path.Base(rel)
		out[name] = append(out[name], i)
	}
	return out
}

// byName returns the indexes of set ordered by basename, then by path
func byName(set models.FileSet) []int {
	idx := make([]int, set.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		na, nb := path.Base(set.Files[idx[a]]), path.Base(set.Files[idx[b]])
		if na != nb {
			return na < nb
		}
		return set.Files[idx[a]] < set.Files[idx[b]]
	})
	return idx
}

func duplicateWarnings(kind models.Kind, side string, set models.FileSet, byName map[string][]int) []string {
	var names []string
	for name, idx := range byName {
		if len(idx) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		paths := make([]string, len(byName[name]))
		for k, i := range byName[name] {
			paths[k] = set.Files[i]
		}
		out = append(out, fmt.Sprintf("%s: %s appears %d times in %s tree (%s), not compared",
			kind, name, len(paths), side, strings.Join(paths, ", ")))
	}
	return out
}
