package engine

import (
	"fmt"

	"github.com/loctree/loctree/locfile"
)

// Commit writes an accepted outcome to disk: the updated target file, then
// a fresh snapshot of the base file next to it. Both writes are atomic,
// and the snapshot only advances after the target has been replaced, so a
// failure between the two leaves the pair re-runnable rather than silently
// desynced.
func Commit(targetPath, basePath string, outcome *Outcome) error {
	if outcome == nil || !outcome.Accepted {
		return fmt.Errorf("refusing to commit a rejected run")
	}
	if err := locfile.WriteFile(targetPath, outcome.Updated); err != nil {
		return fmt.Errorf("writing target: %w", err)
	}
	if err := locfile.WriteSnapshot(targetPath, basePath); err != nil {
		return fmt.Errorf("updating snapshot: %w", err)
	}
	return nil
}
