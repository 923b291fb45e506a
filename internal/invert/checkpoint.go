package invert

import (
	"bufio"
	"fmt"
	"os"
)

const doneMarker = "DONE"

// Checkpoint is the append-only completed-partition log of §4.4: one
// partition key per line, with a trailing "DONE" line marking a fully
// completed run. Correctness relies only on the marker's presence, never
// on rewriting or truncating prior lines.
type Checkpoint struct {
	path string
	f    *os.File
}

// OpenCheckpoint opens (creating if absent) the checkpoint log at path for
// appending.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("invert: open checkpoint %s: %w", path, err)
	}
	return &Checkpoint{path: path, f: f}, nil
}

// Load reads the checkpoint log and returns the set of partition keys
// recorded as done, plus whether the trailing "DONE" marker was present.
// Absence of the marker means the prior run was interrupted; the caller
// must still honour every individual completed-partition entry it finds
// (union partial and fresh state per §4.4) while reprocessing the rest.
func Load(path string) (done map[string]bool, complete bool, err error) {
	done = make(map[string]bool)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return done, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("invert: read checkpoint %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == doneMarker {
			complete = true
			continue
		}
		if line != "" {
			done[line] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("invert: scan checkpoint %s: %w", path, err)
	}
	return done, complete, nil
}

// MarkPartitionDone appends one completed partition key.
func (c *Checkpoint) MarkPartitionDone(key string) error {
	_, err := fmt.Fprintln(c.f, key)
	return err
}

// MarkRunDone appends the trailing completion marker.
func (c *Checkpoint) MarkRunDone() error {
	_, err := fmt.Fprintln(c.f, doneMarker)
	return err
}

// Close closes the underlying checkpoint file.
func (c *Checkpoint) Close() error {
	return c.f.Close()
}
