// Package patchcache tracks which patch filenames have already been merged
// into the target GRF, so repeated runs are idempotent.
//
// Grounded on the load_applied_patches/mark_patch_applied pair in
// original_source/beam-core/src/downloader.rs: a newline-delimited file,
// read fully into a set, rewritten fully on every insert.
package patchcache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/patcherr"
)

// FileName is the name of the cache file within its directory.
const FileName = "applied_patches.txt"

// DirName is the conventional subdirectory holding the cache file,
// relative to the game or executable directory.
const DirName = ".patch_cache"

var log = logrus.WithField("pkg", "patchcache")

// AppliedSet is the on-disk set of patch filenames known to be fully applied.
type AppliedSet struct {
	path string
}

// Open returns an AppliedSet backed by <dir>/.patch_cache/applied_patches.txt,
// creating the directory if necessary. The file itself is not created until
// the first call to MarkApplied.
func Open(dir string) (*AppliedSet, *patcherr.Error) {
	cacheDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, patcherr.Wrap(patcherr.Io, err, "creating patch cache directory")
	}
	return &AppliedSet{path: filepath.Join(cacheDir, FileName)}, nil
}

// Load reads the cache file into a set, trimming each line and ignoring
// empty ones. A missing file is treated as an empty set, not an error.
func (s *AppliedSet) Load() (map[string]struct{}, *patcherr.Error) {
	applied := make(map[string]struct{})

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return applied, nil
		}
		return nil, patcherr.Wrap(patcherr.Io, err, "reading patch cache")
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		applied[line] = struct{}{}
	}

	return applied, nil
}

// MarkApplied adds filename to the set and rewrites the cache file. Write
// order among entries is unspecified.
func (s *AppliedSet) MarkApplied(filename string) *patcherr.Error {
	applied, err := s.Load()
	if err != nil {
		return err
	}
	applied[filename] = struct{}{}

	lines := make([]string, 0, len(applied))
	for name := range applied {
		lines = append(lines, name)
	}

	if werr := os.WriteFile(s.path, []byte(strings.Join(lines, "\n")), 0o644); werr != nil {
		return patcherr.Wrap(patcherr.Io, werr, "writing patch cache")
	}

	log.WithFields(logrus.Fields{"filename": filename}).Info("marked patch as applied")
	return nil
}

// Reset deletes the cache file, forgetting every applied patch. A missing
// file is not an error.
func (s *AppliedSet) Reset() *patcherr.Error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return patcherr.Wrap(patcherr.Io, err, "removing patch cache")
	}
	log.Info("reset patch cache")
	return nil
}
