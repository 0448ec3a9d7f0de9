package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// errNoProbe is returned by probeFilesystem where the platform cannot name
// the filesystem under a path. The location check is then skipped.
var errNoProbe = errors.New("filesystem probe unavailable")

// fsKind names the filesystem holding a path and whether its locking can be
// trusted for SQLite's WAL mode.
type fsKind struct {
	Name   string
	Remote bool
}

// checkJournalLocation rejects a journal path that lives on a remote or
// FUSE filesystem. The path itself may not exist yet; its closest existing
// ancestor is probed instead.
func checkJournalLocation(path string, probe func(string) (fsKind, error)) error {
	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("journal path %q: %w", path, err)
	}

	kind, err := probe(existing)
	switch {
	case errors.Is(err, errNoProbe):
		return nil
	case err != nil:
		return fmt.Errorf("probe filesystem of %q: %w", existing, err)
	case kind.Remote:
		return fmt.Errorf("journal path %q is on %s, which does not give SQLite reliable locks; point journal.path at a local disk", path, kind.Name)
	}
	return nil
}

func closestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		up := filepath.Dir(p)
		if up == p {
			return "", fmt.Errorf("no existing ancestor")
		}
		p = up
	}
}
