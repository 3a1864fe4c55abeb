// Package selection holds the user's choice of enabled remote folders.
// The interactive surface that edits this file lives outside the engine;
// the engine only ever reads it.
package selection

import (
	"fmt"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/noahbaxter/chartsync/internal/utils"
	"gopkg.in/yaml.v3"
)

// Root is the per-folder selection state. Disabled subfolders are matched
// by their top-level name under the root.
type Root struct {
	Enabled            bool     `yaml:"enabled"`
	DisabledSubfolders []string `yaml:"disabled_subfolders,omitempty"`
}

// Set maps top-level remote folder ids to their selection state. Folders
// absent from the map are treated as enabled, so a fresh install syncs
// everything the manifest offers.
type Set struct {
	Roots map[string]Root `yaml:"roots"`
}

func New() *Set {
	return &Set{Roots: make(map[string]Root)}
}

// Load reads a selection file. A missing file yields an empty set.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("selection: read %s: %w", path, err)
	}

	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("selection: parse %s: %w", path, err)
	}
	if s.Roots == nil {
		s.Roots = make(map[string]Root)
	}
	return &s, nil
}

func (s *Set) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("selection: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// IsEnabled reports whether a top-level folder is enabled.
func (s *Set) IsEnabled(rootID string) bool {
	root, ok := s.Roots[rootID]
	if !ok {
		return true
	}
	return root.Enabled
}

// Toggle flips a root's enabled state, preserving its subfolder settings.
func (s *Set) Toggle(rootID string) {
	root := s.Roots[rootID]
	root.Enabled = !s.IsEnabled(rootID)
	s.Roots[rootID] = root
}

// DisabledSubfolders returns the disabled top-level subfolder names for an
// enabled root, sanitized so they compare equal to local path segments.
func (s *Set) DisabledSubfolders(rootID string) mapset.Set[string] {
	names := mapset.NewSet[string]()
	if root, ok := s.Roots[rootID]; ok {
		for _, name := range root.DisabledSubfolders {
			names.Add(utils.SanitizePath(name))
		}
	}
	return names
}

// EnabledOf filters candidates down to the enabled root ids.
func (s *Set) EnabledOf(candidates []string) mapset.Set[string] {
	enabled := mapset.NewSet[string]()
	for _, id := range candidates {
		if s.IsEnabled(id) {
			enabled.Add(id)
		}
	}
	return enabled
}
