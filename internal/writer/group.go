package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Group is a named node in the hierarchical file's group tree. It is
// modeled as a directory on disk: children are subdirectories (groups) or
// dataset files, and string attributes (including the "class" tag, e.g.
// NXentry/NXinstrument/NXlog) live in a small sidecar file. No example in
// the retrieval pack binds an HDF5-like nested storage library for Go (see
// DESIGN.md); this is the directory-tree translation of that model.
type Group struct {
	path string
}

const attrsFile = ".attrs.json"

func newGroup(path string) *Group { return &Group{path: path} }

// Path returns the group's hierarchical path, used in error enrichment and
// as the dataset-lookup key.
func (g *Group) Path() string { return g.path }

func (g *Group) attrsPath() string { return filepath.Join(g.path, attrsFile) }

func (g *Group) readAttrs() (map[string]string, error) {
	data, err := os.ReadFile(g.attrsPath())
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	attrs := map[string]string{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (g *Group) writeAttrs(attrs map[string]string) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return os.WriteFile(g.attrsPath(), data, 0o644)
}

// SetAttr sets a single string attribute on the group (e.g. the NeXus
// "class" tag used by GetGroupOrCreate).
func (g *Group) SetAttr(key, value string) error {
	attrs, err := g.readAttrs()
	if err != nil {
		return atPath(g.path, err)
	}
	attrs[key] = value
	if err := g.writeAttrs(attrs); err != nil {
		return atPath(g.path, err)
	}
	return nil
}

// Attr returns a string attribute, or "" if unset.
func (g *Group) Attr(key string) (string, error) {
	attrs, err := g.readAttrs()
	if err != nil {
		return "", atPath(g.path, err)
	}
	return attrs[key], nil
}

// GetGroupOrCreate returns the child group named name, creating it (and
// tagging it with the "class" attribute) if it does not already exist. It
// is idempotent: calling it again with an existing child returns that
// child without altering its class attribute.
func (f *File) GetGroupOrCreate(parent *Group, name string, class string) (*Group, error) {
	path := filepath.Join(parent.path, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, atPath(path, fmt.Errorf("create group: %w", err))
	}
	child := newGroup(path)

	existingClass, err := child.Attr("class")
	if err != nil {
		return nil, err
	}
	if existingClass == "" {
		if err := child.SetAttr("class", class); err != nil {
			return nil, err
		}
	}
	return child, nil
}
