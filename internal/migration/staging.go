package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/memberbridge/memberbridge/internal/errors"
)

const (
	ExtractedFile = "extracted.json"
	RelocatedFile = "relocated.json"

	stagingVersion = 1
)

// stagingFile is the on-disk envelope shared by extracted.json and relocated.json.
type stagingFile struct {
	Version int     `json:"version"`
	RunID   string  `json:"run_id"`
	Stage   Stage   `json:"stage"`
	Items   []*Item `json:"items"`
}

// WriteStaging stores items under dir/name.
func WriteStaging(dir, name, runID string, stage Stage, items []*Item) (string, error) {
	data, err := json.MarshalIndent(stagingFile{
		Version: stagingVersion,
		RunID:   runID,
		Stage:   stage,
		Items:   items,
	}, "", "  ")
	if err != nil {
		return "", stagingError(err, "marshal_staging", name)
	}
	path := filepath.Join(dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		return "", stagingError(err, "write_staging", path)
	}
	return path, nil
}

// ReadStaging loads the items written by a previous stage.
func ReadStaging(dir, name string) ([]*Item, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stagingError(err, "read_staging", path)
	}
	var f stagingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, stagingError(err, "parse_staging", path)
	}
	if f.Version != stagingVersion {
		return nil, stagingError(fmt.Errorf("unsupported staging version %d", f.Version), "parse_staging", path)
	}
	return f.Items, nil
}

// writeFileAtomic writes through a temp file in the same directory and renames it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func stagingError(err error, operation, path string) error {
	return errors.New(err).
		Component("migration").
		Category(errors.CategoryStaging).
		Context("operation", operation).
		Context("path", path).
		Build()
}

// FatalError aborts a run: no report is written and the process exits non-zero.
type FatalError struct {
	Stage Stage
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: fatal: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError for stage.
func Fatal(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Stage: stage, Err: err}
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
