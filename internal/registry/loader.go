package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"gemmachat/internal/common/fsutil"
	"gemmachat/pkg/types"
)

// DefaultExtensions are the model file types LoadDir recognizes: llama.cpp
// GGUF files and the flat .bin exports on-device runtimes ship.
var DefaultExtensions = []string{".gguf", ".bin"}

// Scanner lists model files in a directory by extension.
type Scanner struct {
	exts []string
}

// NewScanner matches files whose extension is one of exts, case-insensitively.
func NewScanner(exts ...string) *Scanner {
	s := &Scanner{}
	for _, e := range exts {
		s.exts = append(s.exts, strings.ToLower(e))
	}
	return s
}

// NewGGUFScanner matches *.gguf only.
func NewGGUFScanner() *Scanner { return NewScanner(".gguf") }

// Scan builds models from the matching files in dir, sorted by ID.
// ID is the full filename (including extension); Path is the absolute file path.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.Wrap(err, "abs path")
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrap(err, "read dir")
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !s.match(e.Name()) {
			continue
		}
		name := e.Name()
		m := types.Model{
			ID:   name,
			Name: strings.TrimSuffix(name, filepath.Ext(name)),
			Path: filepath.Join(abs, name),
		}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func (s *Scanner) match(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadDir scans dir for files with DefaultExtensions.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner(DefaultExtensions...).Scan(dir)
}

// Resolve picks the model ref names. A ref that is an existing file path is
// used as-is; otherwise it is matched against model IDs, then names.
func Resolve(models []types.Model, ref string) (types.Model, error) {
	if ref == "" {
		if len(models) == 1 {
			return models[0], nil
		}
		return types.Model{}, errors.Errorf("no model selected (%d available)", len(models))
	}
	if strings.ContainsRune(ref, os.PathSeparator) || strings.HasPrefix(ref, "~") {
		p, err := fsutil.ExpandHome(ref)
		if err != nil {
			return types.Model{}, err
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			name := filepath.Base(p)
			return types.Model{ID: name, Name: strings.TrimSuffix(name, filepath.Ext(name)), Path: p, SizeBytes: info.Size()}, nil
		}
	}
	for _, m := range models {
		if m.ID == ref {
			return m, nil
		}
	}
	for _, m := range models {
		if m.Name == ref {
			return m, nil
		}
	}
	return types.Model{}, errors.Errorf("model not found: %s", ref)
}
