package writer

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is the root of one hierarchical output file: a run's worth of
// frames, logs and instrument metadata rooted at a single directory on
// disk (spec §4.3's "nested self-describing file"). The root group is the
// bare filesystem container; the single NXentry group a run actually
// lives under is "raw_data_1", created by runengine.newRun, which is also
// where the IDF/program-name header datasets are written (spec §6).
type File struct {
	root *Group
}

// CreateFile creates a new hierarchical file rooted at path, failing if
// the path already exists.
func CreateFile(path string) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, atPath(path, fmt.Errorf("file already exists"))
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, atPath(path, fmt.Errorf("create file: %w", err))
	}

	return &File{root: newGroup(path)}, nil
}

// OpenFile opens an existing hierarchical file at path for continued
// writing, e.g. when resuming a run after a crash (spec §4.2 abort/resume).
func OpenFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, atPath(path, fmt.Errorf("open file: %w", err))
	}
	if !info.IsDir() {
		return nil, atPath(path, fmt.Errorf("not a hierarchical file"))
	}
	return &File{root: newGroup(path)}, nil
}

// Root returns the file's root group.
func (f *File) Root() *Group { return f.root }

// Path returns the file's on-disk path.
func (f *File) Path() string { return f.root.path }

// Move relocates the file's backing directory to dest, e.g. promoting a
// run's temp/ file into completed/ once it is flushed and closed (spec
// §4.2). dest's parent must already exist.
func (f *File) Move(dest string) error {
	if err := os.Rename(f.root.path, dest); err != nil {
		return atPath(f.root.path, fmt.Errorf("move to %s: %w", dest, err))
	}
	f.root.path = dest
	return nil
}

// Close is a no-op retained for parity with file-handle based writers:
// every operation in this translation opens and closes its own file
// descriptor, so there is no handle to release here.
func (f *File) Close() error { return nil }

// Remove deletes the file's entire backing directory tree. The run engine
// does not call it: an aborted run keeps its file and gets an abort_run
// log entry instead.
func (f *File) Remove() error {
	if err := os.RemoveAll(f.root.path); err != nil {
		return atPath(f.root.path, err)
	}
	return nil
}

func joinPath(base string, parts ...string) string {
	return filepath.Join(append([]string{base}, parts...)...)
}
