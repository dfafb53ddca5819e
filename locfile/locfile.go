// Package locfile reads and writes locale JSON files and their snapshot
// siblings. A snapshot is a verbatim copy of the source-language file taken
// at the moment a target was last synced; it lives next to the target as
// <name>.snapshot.json and is what makes incremental diffs possible.
package locfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loctree/loctree/tree"
)

// ParseFile reads path and parses it as a locale tree. Key order is
// preserved as written on disk.
func ParseFile(path string) (*tree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	t, err := tree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

// WriteFile writes t to path atomically: the content lands in a temp file
// in the same directory first and is renamed into place, so readers never
// observe a half-written locale file.
func WriteFile(path string, t *tree.Tree) error {
	data, err := t.MarshalIndent()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// SnapshotPath returns the snapshot sibling for a target locale file:
// fr.json becomes fr.snapshot.json.
func SnapshotPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".snapshot" + ext
}

// LoadSnapshot reads the snapshot sibling of path. A missing snapshot is
// not an error; it returns (nil, nil) and callers fall back to a full
// first-time translation.
func LoadSnapshot(path string) (*tree.Tree, error) {
	snap := SnapshotPath(path)
	data, err := os.ReadFile(snap)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", snap, err)
	}
	t, err := tree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", snap, err)
	}
	return t, nil
}

// WriteSnapshot copies the source-language file verbatim to the snapshot
// sibling of targetPath. The raw bytes are copied rather than re-encoded
// so the snapshot is byte-identical to what was translated from.
func WriteSnapshot(targetPath, basePath string) error {
	data, err := os.ReadFile(basePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", basePath, err)
	}
	return writeAtomic(SnapshotPath(targetPath), data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
