package corpus

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// Discover walks root and returns one Unit per directory that holds a rules
// artifact. A rich artifact shadows a lean one in the same directory.
// Methodology id and version come from META.json when present, otherwise
// from the "<methodology>/<version>" directory names. Units are sorted by
// directory so discovery order never depends on the filesystem.
func Discover(root string) ([]Unit, error) {
	found := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		dir := filepath.Dir(path)
		switch d.Name() {
		case RichRulesFile:
			found[dir] = RichRulesFile
		case LeanRulesFile:
			if found[dir] != RichRulesFile {
				found[dir] = LeanRulesFile
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering units under %s: %w", root, err)
	}

	dirs := make([]string, 0, len(found))
	for dir := range found {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	units := make([]Unit, 0, len(dirs))
	for _, dir := range dirs {
		meta, err := readMeta(dir)
		if err != nil {
			return nil, err
		}
		unit := Unit{
			MethodologyID: meta.ID,
			Version:       meta.Version,
			Dir:           dir,
			RulesFile:     found[dir],
		}
		if unit.Version == "" {
			unit.Version = filepath.Base(dir)
		}
		if unit.MethodologyID == "" {
			unit.MethodologyID = filepath.Base(filepath.Dir(dir))
		}
		units = append(units, unit)
	}
	return units, nil
}
