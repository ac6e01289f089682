package settle

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed levels.yaml
var defaultFiles embed.FS

// LevelTable maps levels to the experience required to reach them and the
// reward item granted on arrival. Loaded from embedded defaults with an
// optional override directory.
type LevelTable struct {
	defaultThreshold int64
	entries          map[int]levelEntry
}

type levelEntry struct {
	Threshold int64  `yaml:"threshold"`
	Reward    string `yaml:"reward"`
}

type levelsFile struct {
	DefaultThreshold int64              `yaml:"default_threshold"`
	Levels           map[int]levelEntry `yaml:"levels"`
}

// LoadLevelTable reads the embedded table and applies YAML overrides from
// dir when provided. Override files merge per level, later files winning in
// lexical order.
func LoadLevelTable(overrideDir string) (*LevelTable, error) {
	t := &LevelTable{entries: make(map[int]levelEntry)}

	raw, err := fs.ReadFile(defaultFiles, "levels.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded levels: %w", err)
	}
	if err := t.applyYAML(raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := t.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	if t.defaultThreshold <= 0 {
		return nil, fmt.Errorf("default_threshold must be positive")
	}
	return t, nil
}

func (t *LevelTable) applyYAML(raw []byte) error {
	var f levelsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse levels yaml: %w", err)
	}
	if f.DefaultThreshold > 0 {
		t.defaultThreshold = f.DefaultThreshold
	}
	for lvl, e := range f.Levels {
		if lvl < 2 || e.Threshold <= 0 {
			return fmt.Errorf("invalid level entry %d: %+v", lvl, e)
		}
		t.entries[lvl] = e
	}
	return nil
}

func (t *LevelTable) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read levels dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := t.applyYAML(b); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// ThresholdToReach returns the experience needed to advance to the level.
func (t *LevelTable) ThresholdToReach(level int) int64 {
	if e, ok := t.entries[level]; ok {
		return e.Threshold
	}
	return t.defaultThreshold
}

// Reward returns the item granted on reaching the level, or "".
func (t *LevelTable) Reward(level int) string {
	return t.entries[level].Reward
}
