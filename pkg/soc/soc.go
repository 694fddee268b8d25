// Package soc identifies the system-on-chip the process runs on.
package soc

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultDir is the sysfs directory of the first SoC device.
const DefaultDir = "/sys/devices/soc0"

// Attribute describes a SoC. As a match pattern empty fields match
// anything and the others are path.Match globs.
type Attribute struct {
	Family   string `yaml:"family,omitempty"`
	SoCID    string `yaml:"soc_id,omitempty"`
	Revision string `yaml:"revision,omitempty"`
}

func (a Attribute) String() string {
	return fmt.Sprintf("%s %s %s", a.Family, a.SoCID, a.Revision)
}

// Detect reads the SoC attributes exported in dir. Missing attribute files
// are left empty; an unreadable directory is an error.
func Detect(dir string) (Attribute, error) {
	var a Attribute

	if _, err := os.Stat(dir); err != nil {
		return a, fmt.Errorf("failed to read soc attributes: %w", err)
	}

	fields := []struct {
		name string
		dst  *string
	}{
		{"family", &a.Family},
		{"soc_id", &a.SoCID},
		{"revision", &a.Revision},
	}
	for _, f := range fields {
		b, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			continue
		}
		*f.dst = strings.TrimSpace(string(b))
	}

	return a, nil
}

// Match reports whether dev matches any of the patterns.
func Match(dev Attribute, table ...Attribute) bool {
	for _, p := range table {
		if glob(p.Family, dev.Family) && glob(p.SoCID, dev.SoCID) && glob(p.Revision, dev.Revision) {
			return true
		}
	}
	return false
}

func glob(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}
