package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/entrhq/uiharness/pkg/model"
)

// IOError reports a failed artifact write or delete. It never changes a
// test's recorded result.
type IOError struct {
	Op   string
	Kind model.ArtifactKind
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact %s %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Finalize decides retention for every captured record and deletes the files
// of records that are not retained. Records come back in the same order with
// Retained set. Deleting a file that was never produced is a no-op. Delete
// failures are returned, but the record is still reported as not retained.
func (p Policy) Finalize(records []model.ArtifactRecord, result model.Result) ([]model.ArtifactRecord, []error) {
	out := make([]model.ArtifactRecord, len(records))
	var errs []error
	for i, rec := range records {
		rec.Retained = p.Keep(rec.Kind, result)
		if !rec.Retained {
			if err := Remove(rec.Path); err != nil {
				errs = append(errs, &IOError{Op: "delete", Kind: rec.Kind, Path: rec.Path, Err: err})
			}
		}
		out[i] = rec
	}
	return out, errs
}

// Retained filters records down to the retained ones, ordered by kind.
func Retained(records []model.ArtifactRecord) []model.ArtifactRecord {
	var kept []model.ArtifactRecord
	for _, kind := range model.ArtifactKinds {
		for _, rec := range records {
			if rec.Kind == kind && rec.Retained {
				kept = append(kept, rec)
			}
		}
	}
	return kept
}

// Remove deletes a file. A missing file or empty path is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveDirIfEmpty drops a test directory that ended up with no artifacts,
// so on-failure runs do not leave empty folders behind for passing tests.
func RemoveDirIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	return os.Remove(dir)
}

// WriteConsoleLog writes captured console errors, one per line.
func WriteConsoleLog(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600)
}
