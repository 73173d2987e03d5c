package trace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/cover"
)

// FromProfiles turns Go coverage profiles into a trace: every line inside a
// block that executed at least once becomes a record with empty code.
// Files with no executed block are still listed.
func FromProfiles(profiles []*cover.Profile) *Trace {
	t := New()
	for _, p := range profiles {
		t.ensure(p.FileName)
		for _, b := range p.Blocks {
			if b.Count == 0 {
				continue
			}
			for line := b.StartLine; line <= b.EndLine; line++ {
				t.Add(p.FileName, Record{Line: strconv.Itoa(line)})
			}
		}
	}
	t.Normalize()
	return t
}

// ParseProfileFile reads a "go test -coverprofile" file.
func ParseProfileFile(path string) (*Trace, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	return FromProfiles(profiles), nil
}

// ProfileSource maps the import-path file names of a coverage profile to
// files under a module checkout.
type ProfileSource struct {
	Dir    string
	Module string
}

// NewProfileSource returns a ProfileSource rooted at dir. When module is
// empty it is read from dir/go.mod; a directory without go.mod maps names
// relative to dir.
func NewProfileSource(dir, module string) (ProfileSource, error) {
	if module == "" {
		data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		switch {
		case err == nil:
			module = modfile.ModulePath(data)
			if module == "" {
				return ProfileSource{}, fmt.Errorf("%s: no module directive", filepath.Join(dir, "go.mod"))
			}
		case !errors.Is(err, fs.ErrNotExist):
			return ProfileSource{}, fmt.Errorf("read go.mod: %w", err)
		}
	}
	return ProfileSource{Dir: dir, Module: module}, nil
}

// Resolve returns the on-disk path of the profile file name.
func (s ProfileSource) Resolve(name string) string {
	rel := name
	if s.Module != "" {
		if rest, ok := strings.CutPrefix(name, s.Module); ok && (rest == "" || rest[0] == '/') {
			rel = strings.TrimPrefix(rest, "/")
		}
	}
	return filepath.Join(s.Dir, filepath.FromSlash(rel))
}
